package main

import (
	"fmt"
	"log"
	"os"

	"github.com/MGZeroes/bslab/memoryfs"
	"github.com/MGZeroes/bslab/volume"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Usage: "Mount a single-directory block file system",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "memory", Usage: "mount the in-memory variant, no container file"},
			&cli.StringFlag{Name: "container", Usage: "path to the backing container file"},
			&cli.BoolFlag{Name: "dump-dir", Usage: "print the directory table as CSV (a plain name list with --memory) and exit"},
		},
		ArgsUsage: "MOUNTPOINT",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func run(c *cli.Context) error {
	useMemory := c.Bool("memory")
	containerPath := c.String("container")
	mountpoint := c.Args().First()

	if useMemory == (containerPath != "") {
		return cli.Exit("exactly one of --memory or --container must be given", 1)
	}
	if mountpoint == "" {
		return cli.Exit("missing MOUNTPOINT argument", 1)
	}

	if useMemory {
		fs := memoryfs.New()
		if c.Bool("dump-dir") {
			return dumpMemoryDir(fs)
		}
		return serve(fs, mountpoint)
	}

	dev, existed, err := volume.OpenContainerFile(containerPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open container %q: %s", containerPath, err), 1)
	}
	defer dev.Close()

	vol, err := volume.Mount(dev, existed, log.Default())
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to mount %q: %s", containerPath, err), 1)
	}
	defer vol.Close()

	if c.Bool("dump-dir") {
		return dumpVolumeDir(vol)
	}
	return serve(vol, mountpoint)
}

func dumpVolumeDir(vol *volume.Volume) error {
	csv, err := vol.DumpDirectoryCSV()
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to dump directory: %s", err), 1)
	}
	fmt.Print(csv)
	return nil
}

func dumpMemoryDir(fs *memoryfs.FS) error {
	names, err := fs.Readdir("/")
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to list directory: %s", err), 1)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// serve is a placeholder for the real user-space file-system main loop,
// which is out of core scope: a production binary would bind fs to
// mountpoint via a FUSE-style callback table and block until unmounted.
func serve(fs interface{}, mountpoint string) error {
	log.Printf("mounted at %s (adapter wiring out of scope)", mountpoint)
	return nil
}
