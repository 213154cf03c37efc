// Package core provides the table engine: type inference, display
// formatting, calculated columns, per-table settings, merges and the
// dependency cascade that keeps merged tables current.
//
// The package contains all domain logic independent of any transport or
// storage. It can be used by web handlers, the CLI or tests without
// modification; persistence is reached only through the [Store] interface.
//
// # Architecture
//
//   - Inference: [InferType] classifies a column from its first non-blank
//     values; [NewTableData] builds the typed working view of a source.
//   - Formatting: [FormatValue] renders a raw cell by column type and
//     format tag and never fails.
//   - Calculated columns: [Materializer] appends a formula column to a
//     table without modifying the input. Per-row failures become "ERROR".
//   - Settings: [FileSettings] records type overrides, widths and
//     calculated fields; [Replay] rebuilds the saved view from raw data.
//   - Merges: [ExecuteMerge] unions or joins sources into a derived table.
//   - Cascade: [Cascader] rebuilds dependents of an updated source tier by
//     tier, refusing any whose recorded source headers changed.
//   - Service: [Service] is the main entry point for every operation.
//
// # Settings Replay
//
// Opening a table never trusts stored data shapes. Column types are
// inferred again from the raw source, then saved overrides are applied by
// column name and calculated fields are materialized in saved order. Entries
// that no longer fit are skipped and reported as [ReplayIssue] values.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FRM001-FRM004: Formula errors (syntax, functions, arity, columns)
//   - COL001-COL006: Column errors (duplicates, widths, types)
//   - CSC001-CSC003: Cascade errors (header mismatch, cycles, load)
//   - TBL001-TBL005: Table and merge errors
//   - DB001-DB007: Storage errors
package core
