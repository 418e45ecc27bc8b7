package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/trezcool/hifadhi/core/object"
)

// put uploads a local file under the given object key.
func (cli *commandLine) put(file, key, contentType string) error {
	key, err := object.CleanKey(key)
	if err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(file))
	}

	if err := cli.bucket.Put(context.Background(), key, f, info.Size(), contentType); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "uploaded %s -> %s\n", file, cli.bucket.PublicURL(key))
	return nil
}
