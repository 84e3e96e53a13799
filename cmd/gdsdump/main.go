// Command gdsdump reads a GDSII stream file and prints a summary of
// its library.
//
// Usage:
//
//	gdsdump [flags] <file.gds>
//	gdsdump -list <file.gds>
//
// Examples:
//
//	gdsdump chip.gds
//	gdsdump -json chip.gds
//	gdsdump -verbose chip.gds
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/geal-ai/gdsii"
)

// envBool reads a boolean environment-variable override so a flag can
// default from the environment without pulling in an env-parsing
// library for one call site.
func envBool(name string) bool {
	v, _ := strconv.ParseBool(os.Getenv(name))
	return v
}

// jsonCell is one top-level cell's summary for JSON output.
type jsonCell struct {
	Name       string `json:"name"`
	Boundaries int    `json:"boundaries"`
	Texts      int    `json:"texts"`
	Refs       int    `json:"refs"`
}

// jsonOutput is the top-level JSON response.
type jsonOutput struct {
	UserUnitUm float64    `json:"user_unit_um"`
	DBUnitM    float64    `json:"db_unit_m"`
	TopCells   []jsonCell `json:"top_cells"`
}

func main() {
	verbose := flag.Bool("verbose", envBool("GDSII_VERBOSE"), "enable warning tracing")
	listOnly := flag.Bool("list", false, "print top-level cell names and exit")
	asJSON := flag.Bool("json", false, "output results as JSON")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one file argument is required")
		usage()
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fatalf("opening %s: %v", flag.Arg(0), err)
	}
	defer f.Close()

	cfg := gdsii.Config{Verbose: *verbose}
	if s := os.Getenv("GDSII_USERUNIT"); s != "" {
		fmt.Fprintf(os.Stderr, "note: GDSII_USERUNIT=%s has no effect on read\n", s)
	}

	lib, err := gdsii.Load(f, cfg)
	if err != nil {
		fatalf("decoding %s: %v", flag.Arg(0), err)
	}

	if *listOnly {
		for _, c := range lib.Cells() {
			fmt.Println(c.Name)
		}
		return
	}

	if *asJSON {
		emitJSON(lib)
		return
	}

	printSummary(lib)
}

func printSummary(lib *gdsii.Library) {
	fmt.Printf("\n")
	fmt.Printf("  User unit : %g µm\n", lib.UserUnit.Micrometers())
	fmt.Printf("  DB unit   : %g m\n", lib.DBUnit.DBUnit.Meters)
	fmt.Printf("  Top cells : %d\n", len(lib.Cells()))
	fmt.Printf("\n")
	for _, c := range lib.Cells() {
		fmt.Printf("  %-32s  boundaries=%-4d texts=%-4d refs=%-4d\n",
			c.Name, len(c.Boundaries), len(c.Texts), len(c.Refs))
	}
	fmt.Printf("\n")
}

func emitJSON(lib *gdsii.Library) {
	out := jsonOutput{
		UserUnitUm: lib.UserUnit.Micrometers(),
		DBUnitM:    lib.DBUnit.DBUnit.Meters,
	}
	for _, c := range lib.Cells() {
		out.TopCells = append(out.TopCells, jsonCell{
			Name:       c.Name,
			Boundaries: len(c.Boundaries),
			Texts:      len(c.Texts),
			Refs:       len(c.Refs),
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatalf("json encode: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `gdsdump — summarize a GDSII stream file

Usage:
  gdsdump [flags] <file.gds>

Flags:`)
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, `
Examples:
  gdsdump chip.gds
  gdsdump -json chip.gds
  gdsdump -list chip.gds
  gdsdump -verbose chip.gds

Environment:
  GDSII_VERBOSE=1   same as -verbose`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
