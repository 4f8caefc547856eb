// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	evtx "github.com/saferwall/evtx"
	"github.com/spf13/cobra"
)

var (
	strict  bool
	verbose bool
	dumpXML bool
)

func prettyPrint(buf []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, buf, "", "\t"); err != nil {
		log.Println("JSON indent error:", err)
		return string(buf)
	}
	return out.String()
}

// recordSummary is the JSON shape a single decoded record is rendered
// as, marshaled directly rather than through an intermediate report
// type.
type recordSummary struct {
	Offset          int     `json:"offset"`
	Identifier      uint64  `json:"identifier"`
	EventIdentifier *uint32 `json:"event_identifier,omitempty"`
	EventLevel      *uint8  `json:"event_level,omitempty"`
	SourceName      *string `json:"source_name,omitempty"`
	ComputerName    *string `json:"computer_name,omitempty"`
	XML             string  `json:"xml,omitempty"`
}

func dumpFile(filename string, cmd *cobra.Command) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filename, err)
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", filename, err)
	}
	defer data.Unmap()

	cfg := &evtx.Config{StrictSizeCopy: strict}

	return walkChunks(data, func(chunkOffset int) error {
		cc := evtx.NewChunkContext(cfg)
		return walkRecords(data, chunkOffset, func(recordOffset int) error {
			r := evtx.NewRecord(cfg)
			if err := r.ReadHeader(data, recordOffset); err != nil {
				log.Printf("record at offset %d: %v", recordOffset, err)
				return nil
			}
			if err := r.ReadXML(data, cc); err != nil {
				log.Printf("record at offset %d: %v", recordOffset, err)
				return nil
			}
			printRecord(r)
			return nil
		})
	})
}

func printRecord(r *evtx.Record) {
	summary := recordSummary{
		Offset:     r.Offset(),
		Identifier: r.Identifier(),
	}
	if id, ok, err := r.EventIdentifier(); err == nil && ok {
		summary.EventIdentifier = &id
	}
	if lvl, ok, err := r.EventLevel(); err == nil && ok {
		summary.EventLevel = &lvl
	}
	if name, ok, err := r.SourceName(); err == nil && ok {
		summary.SourceName = &name
	}
	if name, ok, err := r.ComputerName(); err == nil && ok {
		summary.ComputerName = &name
	}
	if dumpXML {
		if xml, err := r.FullXMLUTF8(); err == nil {
			summary.XML = xml
		}
	}
	b, err := json.Marshal(summary)
	if err != nil {
		log.Println("marshal error:", err)
		return
	}
	fmt.Println(prettyPrint(b))
}

func dump(cmd *cobra.Command, args []string) {
	for _, filename := range args {
		if err := dumpFile(filename, cmd); err != nil {
			log.Printf("%s: %v", filename, err)
		}
	}
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "evtxdump",
		Short: "A Windows EVTX event-log record decoder",
		Long:  "A read-only EVTX binary-XML record decoder and inspector",
		Run: func(cmd *cobra.Command, args []string) {
		},
	}

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Long:  "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print("You are using version 0.0.1")
		},
	}

	var dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Dumps records from one or more EVTX files",
		Long:  "Walks every chunk and record of the given EVTX files and prints each record as JSON",
		Args:  cobra.MinimumNArgs(1),
		Run:   dump,
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dumpCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (accepted; no command reads it)")
	dumpCmd.Flags().BoolVarP(&strict, "strict", "", false, "fail a record on size_copy mismatch instead of warning")
	dumpCmd.Flags().BoolVarP(&dumpXML, "xml", "", false, "include each record's full rendered XML")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
