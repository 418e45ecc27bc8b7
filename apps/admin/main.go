package main

import (
	"log"
	"os"

	"github.com/trezcool/hifadhi/core"
	"github.com/trezcool/hifadhi/storage/bucket"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// the storage client is only built when the config is complete;
	// `checkconfig` still runs without it
	var bkt *bucket.Client
	if conf.Ready() {
		var err error
		if bkt, err = bucket.NewClient(conf, stdLogger{std: logger}); err != nil {
			logger.Fatal(err)
		}
	}

	cli := commandLine{
		conf:   conf,
		bucket: bkt,
		out:    os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// stdLogger adapts the standard logger to core.Logger for the storage client.
type stdLogger struct {
	std *log.Logger
}

var _ core.Logger = (*stdLogger)(nil)

func (l stdLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l stdLogger) Debug(msg string, args ...interface{}) { l.print(msg, args) }
func (l stdLogger) Info(msg string, args ...interface{})  { l.print(msg, args) }
func (l stdLogger) Warn(msg string, args ...interface{})  { l.print(msg, args) }
func (l stdLogger) Error(msg string, args ...interface{}) { l.print(msg, args) }
func (l stdLogger) Fatal(msg string, args ...interface{}) { l.print(msg, args); os.Exit(1) }
