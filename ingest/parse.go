// Package ingest implements the document ingestion pipeline: parse the
// uploaded file into structural elements, chunk them under token and
// structural constraints, enrich each chunk with model-generated metadata,
// embed three vector views, and upsert into the tenant's collection while
// driving the document status machine.
package ingest

import (
	"context"
	"strings"
)

type (
	// ElementType classifies a parsed document element.
	ElementType string

	// Element is one structural unit produced by the parsing collaborator.
	// TableRows carries the structured representation of a table when the
	// parser could extract one.
	Element struct {
		Text           string
		Type           ElementType
		SectionHeading string
		PageNumber     int
		TableRows      [][]string
	}

	// Parser extracts ordered elements from a file on disk. Implementations
	// wrap external parsing services or format-specific libraries.
	Parser interface {
		Parse(ctx context.Context, path string) ([]Element, error)
	}
)

const (
	ElementTitle         ElementType = "Title"
	ElementNarrativeText ElementType = "NarrativeText"
	ElementTable         ElementType = "Table"
	ElementListItem      ElementType = "ListItem"
)

// NormalizeElements prepares raw parser output for chunking: a running
// section heading is carried forward (updated on every Title, attached to
// every subsequent element), tables are rendered to markdown-grid form when
// structured rows are available, and empty-text elements are dropped.
func NormalizeElements(raw []Element) []Element {
	var (
		out     []Element
		section string
	)
	for _, el := range raw {
		text := strings.TrimSpace(el.Text)
		if el.Type == ElementTable {
			if len(el.TableRows) > 0 {
				text = tableToMarkdown(el.TableRows)
			} else if text != "" {
				text = "Table:\n" + text
			}
		}
		if text == "" {
			continue
		}
		if el.Type == ElementTitle {
			section = text
		}
		out = append(out, Element{
			Text:           text,
			Type:           el.Type,
			SectionHeading: section,
			PageNumber:     el.PageNumber,
		})
	}
	return out
}

func tableToMarkdown(rows [][]string) string {
	var sb strings.Builder
	for i, row := range rows {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString(" |\n")
		if i == 0 {
			sb.WriteString("|")
			sb.WriteString(strings.Repeat(" --- |", len(row)))
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
