package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/trezcool/hifadhi/core/object"
)

// get downloads an object to the given file, or to stdout when file is empty.
func (cli *commandLine) get(key, file string) error {
	key, err := object.CleanKey(key)
	if err != nil {
		return err
	}

	obj, err := cli.bucket.Get(context.Background(), key)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	if file == "" {
		_, err = io.Copy(cli.out, obj.Body)
		return err
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err = io.Copy(f, obj.Body); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "downloaded %s -> %s\n", key, file)
	return nil
}
