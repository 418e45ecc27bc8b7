package main

import (
	"context"
	"fmt"

	"github.com/trezcool/hifadhi/core/object"
)

// rm deletes an object; deleting a missing object is not an error.
func (cli *commandLine) rm(key string) error {
	key, err := object.CleanKey(key)
	if err != nil {
		return err
	}
	if err := cli.bucket.Delete(context.Background(), key); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted %s\n", key)
	return nil
}
