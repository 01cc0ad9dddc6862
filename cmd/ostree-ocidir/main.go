package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ostreedev/ostree-go/pkg/otbuiltin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/ostreedev/ostree-ocidir/internal/selinuxlabel"
	"github.com/ostreedev/ostree-ocidir/ostreeocidir"
)

func createApp() *cli.App {
	app := cli.NewApp()
	app.Name = "ostree-ocidir"
	app.Usage = "bridge OSTree commits and OCI directories"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("debug") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	}
	app.Commands = []cli.Command{
		buildCommand,
		pullCommand,
	}
	return app
}

func main() {
	if err := createApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var buildCommand = cli.Command{
	Name:  "build",
	Usage: "export an OSTree ref into an OCI directory",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "repo", Usage: "path to the OSTree repository"},
		cli.StringFlag{Name: "ref", Usage: "OSTree ref to export"},
		cli.StringFlag{Name: "oci-dir", Usage: "path of the OCI directory to create"},
	},
	Action: func(c *cli.Context) error {
		repo, ref, ociDir := c.String("repo"), c.String("ref"), c.String("oci-dir")
		if repo == "" || ref == "" || ociDir == "" {
			return fmt.Errorf("usage: build --repo <PATH> --ref <OSTREE_REF> --oci-dir <PATH>")
		}
		logrus.Debugf("building %s from ref %s in repo %s", ociDir, ref, repo)
		return ostreeocidir.Build(context.Background(), repo, ref, ostreeocidir.OciDir(ociDir))
	},
}

var pullCommand = cli.Command{
	Name:      "pull",
	Usage:     "import a remote OCI image into an OSTree repo",
	ArgsUsage: "IMAGE_REF",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "repo", Usage: "path to the OSTree repository"},
		cli.StringFlag{Name: "checkout", Usage: "check the imported commit out to this directory after import"},
		cli.StringFlag{Name: "write-ref", Usage: "also point this OSTree ref at the imported commit"},
	},
	Action: func(c *cli.Context) error {
		repo := c.String("repo")
		if repo == "" || c.NArg() != 1 {
			return fmt.Errorf("usage: pull --repo <PATH> <IMAGE_REF>")
		}
		imageRef := c.Args().Get(0)
		logrus.Debugf("pulling %s into repo %s", imageRef, repo)

		var result ostreeocidir.ImportResult
		var err error
		if writeRef := c.String("write-ref"); writeRef != "" {
			result, err = ostreeocidir.ImportWithRef(context.Background(), repo, imageRef, writeRef)
		} else {
			result, err = ostreeocidir.Import(context.Background(), repo, imageRef)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Imported: %s\n", result.OstreeCommit)

		if dest := c.String("checkout"); dest != "" {
			opts := otbuiltin.NewCheckoutOptions()
			opts.UserMode = true
			if err := otbuiltin.Checkout(repo, dest, result.OstreeCommit, opts); err != nil {
				return errors.Wrapf(err, "checking out %s to %s", result.OstreeCommit, dest)
			}
			if err := selinuxlabel.Relabel(dest); err != nil {
				return errors.Wrapf(err, "relabeling %s", dest)
			}
		}
		return nil
	},
}
