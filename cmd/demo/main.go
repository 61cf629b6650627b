package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/intellect4all/kvbtree/table"
)

func main() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("B+-Tree Key-Value Store Demo")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	dir, err := os.MkdirTemp("", "kvbtree-demo-")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "demo.db")

	tbl, err := table.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer tbl.Close()

	id := tbl.InstanceID()
	fmt.Printf("✓ Opened table %s (instance %s)\n", path, id)

	fmt.Println("\n[Writing data]")
	users := []table.Record{
		{ID: 1001, Username: "alice", Email: "alice@example.com"},
		{ID: 1002, Username: "bob", Email: "bob@example.com"},
		{ID: 1003, Username: "charlie", Email: "charlie@example.com"},
		{ID: 101, Username: "dave", Email: "dave@example.com"},
		{ID: 102, Username: "erin", Email: "erin@example.com"},
	}
	for _, u := range users {
		if err := tbl.Insert(u); err != nil {
			log.Printf("Error inserting %d: %v", u.ID, err)
			continue
		}
		fmt.Printf("  INSERT %d -> %s <%s>\n", u.ID, u.Username, u.Email)
	}

	fmt.Println("\n[Point lookups]")
	for _, u := range users {
		got, ok, err := tbl.Find(u.ID)
		if err != nil {
			log.Printf("Error finding %d: %v", u.ID, err)
			continue
		}
		if !ok {
			log.Printf("Key not found: %d", u.ID)
			continue
		}
		fmt.Printf("  FIND %d -> %s <%s>\n", got.ID, got.Username, got.Email)
	}

	fmt.Println("\n[Updating a record in place]")
	updated := table.Record{ID: 1001, Username: "alice", Email: "alice@newdomain.com"}
	if err := tbl.Update(updated); err != nil {
		log.Printf("Error updating: %v", err)
	} else {
		fmt.Println("  UPDATE 1001 -> alice@newdomain.com")
	}

	fmt.Println("\n[Deleting a record]")
	if err := tbl.Delete(102); err != nil {
		log.Printf("Error deleting: %v", err)
	} else {
		fmt.Println("  DELETE 102")
	}
	if _, ok, err := tbl.Find(102); err == nil && !ok {
		fmt.Println("  FIND 102 -> not found (as expected)")
	}

	fmt.Println("\n[Range scan: ids 100..1001]")
	lo, hi := uint32(100), uint32(1001)
	it, err := tbl.Range(&lo, &hi)
	if err != nil {
		log.Fatal(err)
	}
	for it.Next() {
		r := it.Record()
		fmt.Printf("  %d -> %s <%s>\n", r.ID, r.Username, r.Email)
	}
	it.Close()

	fmt.Println("\n[Full scan, ascending key order]")
	all, err := tbl.SelectAll()
	if err != nil {
		log.Fatal(err)
	}
	count := 0
	for all.Next() {
		count++
	}
	all.Close()
	fmt.Printf("  %d records total\n", count)

	fmt.Println("\n[Structural validation]")
	if err := tbl.Validate(); err != nil {
		fmt.Printf("  INVALID: %v\n", err)
	} else {
		fmt.Println("  tree invariants hold")
	}

	fmt.Println("\n[Tree dump]")
	fmt.Print(tbl.DumpTree())

	stats := tbl.Stats()
	fmt.Println("\n[Stats]")
	fmt.Printf("  Keys:  %d\n", stats.NumKeys)
	fmt.Printf("  Pages: %d\n", stats.NumPages)
	fmt.Printf("  Free:  %d\n", stats.FreePages)
}
