// Package logstore persists the Execution Logger's append-only record of
// job outcomes, and exposes it for the diagnostic-learning queries the
// Admission Front-End's /logs routes serve.
package logstore

import (
	"strings"

	"github.com/lumicore/sandrun/pkg/models"
)

// DeriveCategory classifies an error message into a LogCategory by
// substring matching over the guest's reported error text.
func DeriveCategory(errMsg string, timedOut, cancelled bool) models.LogCategory {
	if cancelled {
		return models.CategoryCancelled
	}
	if timedOut {
		return models.CategoryTimeout
	}

	lower := strings.ToLower(errMsg)

	switch {
	case strings.Contains(lower, "importerror") || strings.Contains(lower, "modulenotfounderror"):
		return models.CategoryImportError
	case strings.Contains(lower, "attributeerror"):
		return models.CategoryAttributeError
	case strings.Contains(lower, "keyerror") || strings.Contains(lower, "indexerror") || strings.Contains(lower, "filenotfounderror"):
		return models.CategoryDataAccessError
	case strings.Contains(lower, "typeerror"):
		return models.CategoryTypeError
	case strings.Contains(lower, "valueerror"):
		return models.CategoryValueError
	case strings.Contains(lower, "error") || strings.Contains(lower, "exception") || strings.Contains(lower, "traceback"):
		return models.CategoryRuntimeError
	default:
		return models.CategoryOther
	}
}
