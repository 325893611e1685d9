package mcpserver

// MemFormat describes the on-disk format of a mem for LLM consumers that
// read or create mems.
const MemFormat = `# Mem Format

A mem is one Markdown document stored at ` + "`" + `.mems/<path>.md` + "`" + `. The path is
slash-separated and has no extension: ` + "`" + `arch/adr-001` + "`" + ` lives in
` + "`" + `.mems/arch/adr-001.md` + "`" + `.

## Structure

` + "```" + `markdown
---
title: Use Postgres for the event store
created-at: 2025-01-19T12:00:00Z
updated-at: 2025-01-19T12:00:00Z
tags:
  - adr
  - storage
---
Body text in standard Markdown.
` + "```" + `

## Rules

1. The file starts with a ` + "`" + `---` + "`" + ` line and the header ends at the next ` + "`" + `---` + "`" + ` line.
2. ` + "`" + `title` + "`" + `, ` + "`" + `created-at` + "`" + ` and ` + "`" + `updated-at` + "`" + ` are required. Timestamps are
   RFC 3339 in UTC with second precision.
3. ` + "`" + `tags` + "`" + ` is an optional ordered list and is omitted when empty.
4. The body follows the closing line verbatim. One blank line after the header is
   ignored.
5. Link other mems with relative Markdown links that keep the extension:
   ` + "`" + `[the queue decision](adr-002.md)` + "`" + ` or ` + "`" + `[notes](../notes/today.md)` + "`" + `.
   A leading ` + "`" + `/` + "`" + ` resolves from the store root. ` + "`" + `lint` + "`" + ` reports links whose
   target does not exist.
6. Paths must be relative and clean. Segments starting with ` + "`" + `.` + "`" + `, segments ending
   in ` + "`" + `.tmp` + "`" + ` and the top-level ` + "`" + `archive/` + "`" + ` directory are reserved.

## Creating mems

Use the ` + "`" + `add_mem` + "`" + ` tool with the path, the Markdown body and optional title and
tags. The header is written for you. Without a title, the last path segment is
used with dashes and underscores read as spaces.
`
