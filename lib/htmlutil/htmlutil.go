// Package htmlutil holds the markup helpers shared by drivers and the
// debug tooling.
package htmlutil

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("fintself.lib.htmlutil")

// GetText concatenates every text node under node, markup stripped.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// Reduce strips script and style elements, comments and blank lines from a
// markup snapshot. Captured bank pages shrink by an order of magnitude and
// stay reviewable.
func Reduce(markup string) (string, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parsing markup: %w", err)
	}
	prune(root)

	var rendered bytes.Buffer
	if err := html.Render(&rendered, root); err != nil {
		return "", fmt.Errorf("rendering markup: %w", err)
	}

	lines := strings.Split(rendered.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func prune(node *html.Node) {
	child := node.FirstChild
	for child != nil {
		next := child.NextSibling
		switch {
		case child.Type == html.CommentNode:
			node.RemoveChild(child)
		case child.Type == html.ElementNode && (child.Data == "script" || child.Data == "style"):
			node.RemoveChild(child)
		default:
			prune(child)
		}
		child = next
	}
}

// ReduceDir reduces every .html file under inputDir into outputDir,
// preserving the relative layout. An outputDir nested inside inputDir is
// skipped rather than re-processed. Returns the number of files written.
func ReduceDir(ctx context.Context, inputDir, outputDir string) (int, error) {
	_, span := tracer.Start(ctx, "ReduceDir")
	defer span.End()
	span.SetAttributes(
		attribute.String("input", inputDir),
		attribute.String("output", outputDir),
	)

	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return 0, err
	}

	written := 0
	err = filepath.WalkDir(inputDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			if abs == absOut {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(entry.Name(), ".html") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		reduced, err := Reduce(string(raw))
		if err != nil {
			return fmt.Errorf("reducing %s: %w", path, err)
		}

		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(outputDir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(reduced), 0o644); err != nil {
			return err
		}
		written++
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reduce walk failed")
		return written, err
	}
	span.SetAttributes(attribute.Int("written", written))
	return written, nil
}
