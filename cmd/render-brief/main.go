package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/civicsignal/billwatch/internal/report"
	"github.com/civicsignal/billwatch/internal/store"
)

func main() {
	dbPath := flag.String("db", "billwatch.db", "SQLite database path")
	briefID := flag.String("brief", "", "Brief ID to render")
	outPath := flag.String("out", "", "Output PDF path (omit to print markdown)")
	flag.Parse()

	if *briefID == "" {
		log.Fatal("pass -brief <id>")
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	b, found, err := st.GetBrief(context.Background(), *briefID)
	if err != nil {
		log.Fatalf("load brief: %v", err)
	}
	if !found {
		log.Fatalf("brief %s not found", *briefID)
	}

	markdown := report.BuildMarkdown(b)
	if *outPath == "" {
		fmt.Print(markdown)
		return
	}

	pdf, err := report.NewPDFRenderer().Render(context.Background(), markdown)
	if err != nil {
		log.Fatalf("render pdf: %v", err)
	}
	if err := os.WriteFile(*outPath, pdf, 0o644); err != nil {
		log.Fatalf("write pdf: %v", err)
	}
	log.Printf("wrote %s (%d bytes)", *outPath, len(pdf))
}
