// Command regcli is a minimal demonstrator for the avlreg store: it opens
// (creating if needed) a registry file, creates a key under the root with
// two values under it, commits, and prints an in-order listing of the
// root's children. It is not part of the storage engine's core scope
// (spec §1 "Out of scope: ... the test harness and CLI demonstrator").
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/arborfile/avlreg"
)

func main() {
	path := flag.String("path", "registry.db", "path to the registry file")
	flag.Parse()

	reg, err := avlreg.Open(avlreg.Options{
		Path:  *path,
		Flags: avlreg.FlagReadWrite | avlreg.FlagCreate | avlreg.FlagAutosave,
	})
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer reg.Close()

	appKey, err := reg.CreateKey(0, []byte("app"), nil)
	if err != nil && avlreg.KindOf(err) != avlreg.KindExists {
		log.Fatalf("create key app: %v", err)
	}
	if err != nil {
		appKey, err = reg.Find(0, []byte("app"), avlreg.Keys, nil)
		if err != nil {
			log.Fatalf("find key app: %v", err)
		}
	}

	if _, err := reg.CreateString(appKey, []byte("version"), "0.1.0", nil); err != nil && avlreg.KindOf(err) != avlreg.KindExists {
		log.Fatalf("create value version: %v", err)
	}
	if _, err := reg.CreateInt32(appKey, []byte("retries"), 3, nil); err != nil && avlreg.KindOf(err) != avlreg.KindExists {
		log.Fatalf("create value retries: %v", err)
	}

	if err := reg.Commit(true); err != nil {
		log.Fatalf("commit: %v", err)
	}

	c, first, err := reg.InorderFirst(0, nil, avlreg.Keys, avlreg.Ascending, nil)
	if err != nil && avlreg.KindOf(err) != avlreg.KindNotFound {
		log.Fatalf("inorder first: %v", err)
	}
	for node := first; node != 0; {
		name, err := reg.GetName(node)
		if err != nil {
			log.Fatalf("get name: %v", err)
		}
		fmt.Println(name)
		node, err = reg.InorderNext(c)
		if err != nil {
			if avlreg.KindOf(err) == avlreg.KindNotFound {
				break
			}
			log.Fatalf("inorder next: %v", err)
		}
	}
}
