package errors

import "syscall"

// This file names the errno codes the volume layer actually returns, per
// the error taxonomy: kind -> trigger -> surfaced errno.

var (
	// ErrNoSpace: directory full, or free-block count insufficient.
	ErrNoSpace = New(syscall.ENOSPC)
	// ErrExists: target name already present.
	ErrExists = New(syscall.EEXIST)
	// ErrNotFound: source name missing.
	ErrNotFound = New(syscall.ENOENT)
	// ErrNameTooLong: len(path)-1 > L_NAME.
	ErrNameTooLong = New(syscall.EINVAL)
	// ErrTooManyOpen: open registry at N_OPEN.
	ErrTooManyOpen = New(syscall.EMFILE)
	// ErrInUse: open on an already-open path.
	ErrInUse = New(syscall.EPERM)
	// ErrBadArgument: negative offset on read/write.
	ErrBadArgument = New(syscall.EINVAL)
	// ErrFileTableOverflow: chain walk hit is_last prematurely.
	ErrFileTableOverflow = New(syscall.ENFILE)
	// ErrIO: backing device failure, or a chain that loops or leaves the
	// data area (treated as unrecoverable corruption).
	ErrIO = New(syscall.EIO)
)
