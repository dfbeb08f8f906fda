package pipeline

// errors.go maps technical errors to coded operator messages.
//
// Codes are grouped by the stage that produced them:
//
//	DM001-DM099   data mart extraction
//	CSV001-CSV099 reading and writing stage files
//	DQ001-DQ099   data-quality classification
//	PRT001-PRT099 portal upload
//	RUN001-RUN099 run management
//	ERR000        no pattern matched; check the logs for the original error
//
// Sentinel errors are matched first with errors.Is. Otherwise the error text
// is matched case-insensitively with strings.Contains and the first pattern
// wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/swamp/internal/datamart"
	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/portal"
	"github.com/JonMunkholm/swamp/internal/process"
	"github.com/JonMunkholm/swamp/internal/quality"
)

// UserMessage is an operator-facing description of a failure.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{datamart.ErrNoTable, UserMessage{
		Message: "This data type is not extracted from the data mart",
		Action:  "Run the quality stage for the other data types first",
		Code:    "DM004",
	}},
	{dataset.ErrEmptyFile, UserMessage{
		Message: "The input file is empty",
		Action:  "Re-run the previous stage to regenerate the file",
		Code:    "CSV003",
	}},
	{quality.ErrRuleFault, UserMessage{
		Message: "A quality rule failed on some records",
		Action:  "Check the logs for the affected rows; they were marked Unknown data quality",
		Code:    "DQ001",
	}},
	{portal.ErrNotConfigured, UserMessage{
		Message: "The data portal is not configured",
		Action:  "Set PORTAL_URL and PORTAL_API_KEY",
		Code:    "PRT001",
	}},
	{portal.ErrPortalRejected, UserMessage{
		Message: "The data portal rejected the upload",
		Action:  "Verify the API key and resource id, then retry the upload stage",
		Code:    "PRT002",
	}},
	{process.ErrUnknownDataType, UserMessage{
		Message: "Unknown data type",
		Action:  "Use one of: " + strings.Join(process.Keys(), ", "),
		Code:    "RUN001",
	}},
	{ErrRunInProgress, UserMessage{
		Message: "A run for this data type is already in progress",
		Action:  "Wait for the current run to finish",
		Code:    "RUN002",
	}},
	{ErrTooManyRuns, UserMessage{
		Message: "Too many runs in progress",
		Action:  "Please wait a moment and try again",
		Code:    "RUN003",
	}},
	{ErrRunNotFound, UserMessage{
		Message: "Run not found",
		Action:  "List runs with GET /api/runs; run history is kept in memory only",
		Code:    "RUN006",
	}},
	{ErrNoDataMart, UserMessage{
		Message: "The data mart is not configured",
		Action:  "Set DATAMART_URL, or place the raw file in the data directory",
		Code:    "DM005",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the data mart",
			Action:  "Check DATAMART_URL and that the server is reachable",
			Code:    "DM001",
		},
	},
	{
		pattern: "password authentication failed",
		msg: UserMessage{
			Message: "The data mart rejected the credentials",
			Action:  "Check the user and password in DATAMART_URL",
			Code:    "DM002",
		},
	},
	{
		pattern: "statement timeout",
		msg: UserMessage{
			Message: "A data mart query timed out",
			Action:  "Raise DATAMART_STATEMENT_TIMEOUT or retry later",
			Code:    "DM003",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "A required column is missing from the input file",
			Action:  "Check the file header against the data type's columns",
			Code:    "CSV001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "The input file is not a valid CSV",
			Action:  "Ensure the file is comma-separated with consistent columns",
			Code:    "CSV002",
		},
	},
	{
		pattern: "no such file or directory",
		msg: UserMessage{
			Message: "An input file was not found",
			Action:  "Run the earlier stages first or check PIPELINE_DATA_DIR",
			Code:    "CSV004",
		},
	},
	{
		pattern: "decode code tables",
		msg: UserMessage{
			Message: "The code tables could not be loaded",
			Action:  "Validate the code table file against the expected layout",
			Code:    "DQ002",
		},
	},
	{
		pattern: "code table",
		msg: UserMessage{
			Message: "A code table contains an invalid score",
			Action:  "Scores must be between 0 and 6",
			Code:    "DQ003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run timed out",
			Action:  "Raise PIPELINE_RUN_TIMEOUT or retry later",
			Code:    "RUN005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "RUN005",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the original error",
	Code:    "ERR000",
}

// MapError converts err to an operator message. nil maps to the zero value.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
