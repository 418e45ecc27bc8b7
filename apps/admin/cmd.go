package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/hifadhi/core"
	"github.com/trezcool/hifadhi/storage/bucket"
)

var (
	errHelp     = errors.New("help provided")
	errNotReady = errors.New("gateway not configured; run `checkconfig`")
)

type commandLine struct {
	conf   *core.Config
	bucket *bucket.Client
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  put -file FILE -key KEY [-type CONTENT_TYPE] - upload a file to the bucket")
	fmt.Fprintln(cli.out, "  get -key KEY [-file FILE]                    - download an object (stdout by default)")
	fmt.Fprintln(cli.out, "  rm -key KEY                                  - delete an object")
	fmt.Fprintln(cli.out, "  checkconfig                                  - report missing configuration")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	putCmd := flag.NewFlagSet("put", flag.ContinueOnError)
	putFile := putCmd.String("file", "", "The local file to upload.")
	putKey := putCmd.String("key", "", "The destination object key.")
	putType := putCmd.String("type", "", "Content type; sniffed from the file extension if empty.")

	getCmd := flag.NewFlagSet("get", flag.ContinueOnError)
	getKey := getCmd.String("key", "", "The object key to download.")
	getFile := getCmd.String("file", "", "Write to this file instead of stdout.")

	rmCmd := flag.NewFlagSet("rm", flag.ContinueOnError)
	rmKey := rmCmd.String("key", "", "The object key to delete.")

	switch args[1] {
	case "put":
		if err := putCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *putFile == "" || *putKey == "" {
			putCmd.Usage()
			return errHelp
		}
		if cli.bucket == nil {
			return errNotReady
		}
		return cli.put(*putFile, *putKey, *putType)
	case "get":
		if err := getCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *getKey == "" {
			getCmd.Usage()
			return errHelp
		}
		if cli.bucket == nil {
			return errNotReady
		}
		return cli.get(*getKey, *getFile)
	case "rm":
		if err := rmCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rmKey == "" {
			rmCmd.Usage()
			return errHelp
		}
		if cli.bucket == nil {
			return errNotReady
		}
		return cli.rm(*rmKey)
	case "checkconfig":
		return cli.checkConfig()
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) checkConfig() error {
	if err := cli.conf.Validate(); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "configuration OK: bucket %q\n", cli.conf.Storage.Bucket)
	return nil
}
