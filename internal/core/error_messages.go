package core

// # Error Codes Reference
//
// User-facing messages carry a code that can be quoted to support.
//
// # Formula Errors (FRM001-FRM099)
//
//	FRM001 - Syntax error: the formula text is malformed
//	         Patterns: "syntax error"
//	FRM002 - Unknown function
//	         Patterns: "unknown function"
//	FRM003 - Wrong number of arguments
//	         Patterns: "wrong number of arguments"
//	FRM004 - Unknown column referenced by a formula
//	         Patterns: "unresolved column", "unknown column"
//
// # Column Errors (COL001-COL099)
//
//	COL001 - A column with this name already exists
//	COL002 - Only calculated columns can be removed
//	COL003 - Column index out of range
//	COL004 - Column width outside 20..2000 px
//	COL005 - Unknown data type or format
//	COL006 - Calculated field still referenced by another field
//
// # Settings Errors (SET001-SET099)
//
//	SET001 - Stored settings are from a newer version
//	SET002 - Stored settings cannot be decoded
//
// # Cascade Errors (CSC001-CSC099)
//
//	CSC001 - Source headers no longer match a merged table
//	CSC002 - Merge would create a dependency cycle
//	CSC003 - Too many cascades running
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Table not found
//	TBL002 - Merged tables are rebuilt from their sources, not edited
//	TBL003 - Table shape is invalid (no columns, duplicate or ragged rows)
//	TBL004 - Merge definition is invalid
//	TBL005 - Merge not found
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV
//	FILE005 - Empty file
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock or locked database
//
// Patterns are matched case-insensitively against the error text in
// order; the first match wins, so specific patterns come first.

import (
	"fmt"
	"strings"
)

// UserMessage is a user-facing rendering of an error.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Formula Errors
	// =========================================================================
	{
		pattern: "syntax error",
		msg: UserMessage{
			Message: "The formula could not be parsed",
			Action:  "Check parentheses, commas and quotes, e.g. ROUND(DIVIDE(Sales, Units), 2)",
			Code:    "FRM001",
		},
	},
	{
		pattern: "unknown function",
		msg: UserMessage{
			Message: "The formula uses an unknown function",
			Action:  "Use one of SUM, SUBTRACT, MULTIPLY, DIVIDE, AVERAGE, PERCENT, MAX, MIN, CONCAT, ROUND, UPPER, LOWER, IF",
			Code:    "FRM002",
		},
	},
	{
		pattern: "wrong number of arguments",
		msg: UserMessage{
			Message: "A function was called with the wrong number of arguments",
			Action:  "Check the arguments of each function in the formula",
			Code:    "FRM003",
		},
	},
	{
		pattern: "unresolved column",
		msg: UserMessage{
			Message: "The formula references a column that does not exist",
			Action:  "Check the column names; use [Column Name] for names with punctuation",
			Code:    "FRM004",
		},
	},

	// =========================================================================
	// Column Errors
	// =========================================================================
	{
		pattern: "column already exists",
		msg: UserMessage{
			Message: "A column with this name already exists",
			Action:  "Choose a different name for the calculated field",
			Code:    "COL001",
		},
	},
	{
		pattern: "not a calculated field",
		msg: UserMessage{
			Message: "Only calculated columns can be removed",
			Action:  "Source columns come from the uploaded data",
			Code:    "COL002",
		},
	},
	{
		pattern: "out of range",
		msg: UserMessage{
			Message: "Column does not exist",
			Action:  "Refresh the table and try again",
			Code:    "COL003",
		},
	},
	{
		pattern: "invalid column width",
		msg: UserMessage{
			Message: "Column width is out of bounds",
			Action:  fmt.Sprintf("Use a width between %d and %d pixels", MinColumnWidth, MaxColumnWidth),
			Code:    "COL004",
		},
	},
	{
		pattern: "unknown data type",
		msg: UserMessage{
			Message: "Unknown column type or format",
			Action:  "Use text, number, date, boolean or currency",
			Code:    "COL005",
		},
	},
	{
		pattern: "unknown format",
		msg: UserMessage{
			Message: "Unknown column type or format",
			Action:  "Pick one of the formats offered for the column type",
			Code:    "COL005",
		},
	},
	{
		pattern: "is referenced by",
		msg: UserMessage{
			Message: "Another calculated field depends on this column",
			Action:  "Remove the dependent calculated field first",
			Code:    "COL006",
		},
	},

	// =========================================================================
	// Settings Errors
	// =========================================================================
	{
		pattern: "unsupported settings version",
		msg: UserMessage{
			Message: "Saved table settings are from a newer version",
			Action:  "Upgrade the application to open this table",
			Code:    "SET001",
		},
	},
	{
		pattern: "decode settings",
		msg: UserMessage{
			Message: "Saved table settings are corrupted",
			Action:  "Contact support with the table id",
			Code:    "SET002",
		},
	},

	// =========================================================================
	// Cascade Errors
	// =========================================================================
	{
		pattern: "header mismatch",
		msg: UserMessage{
			Message: "The updated table's columns no longer match a merged table",
			Action:  "Restore the original column names or rebuild the merge",
			Code:    "CSC001",
		},
	},
	{
		pattern: "dependency cycle",
		msg: UserMessage{
			Message: "This merge would make a table depend on itself",
			Action:  "Choose sources that are not built from this table",
			Code:    "CSC002",
		},
	},
	{
		pattern: "too many cascades",
		msg: UserMessage{
			Message: "The system is busy updating merged tables",
			Action:  "Please wait a moment and try again",
			Code:    "CSC003",
		},
	},

	// =========================================================================
	// Table and File Errors
	// =========================================================================
	{
		pattern: "table not found",
		msg: UserMessage{
			Message: "Table not found",
			Action:  "Verify the table id is correct",
			Code:    "TBL001",
		},
	},
	{
		pattern: "merged table",
		msg: UserMessage{
			Message: "Merged tables are rebuilt from their sources",
			Action:  "Update one of the source tables instead",
			Code:    "TBL002",
		},
	},
	{
		pattern: "invalid table",
		msg: UserMessage{
			Message: "The table data is not valid",
			Action:  "Every column needs a unique name and every row the same number of values",
			Code:    "TBL003",
		},
	},
	{
		pattern: "invalid merge",
		msg: UserMessage{
			Message: "The merge definition is not valid",
			Action:  "Check the merge kind, sources and join key",
			Code:    "TBL004",
		},
	},
	{
		pattern: "merge not found",
		msg: UserMessage{
			Message: "Merge not found",
			Action:  "The merged table may have been deleted",
			Code:    "TBL005",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit (100MB)",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with a header row",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Database Errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Rate Limiting
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the default message if no specific pattern matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "unknown column") {
		errStr += " unresolved column"
	}

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError returns a formatted error string with code and action.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
