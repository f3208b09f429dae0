// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/internal/fetch"
	"github.com/invowk/addonctl/internal/hostenv"
	"github.com/invowk/addonctl/internal/issue"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/internal/update"
	"github.com/invowk/addonctl/pkg/addon"
)

// errAborted is returned when the user declines a confirmation prompt.
var errAborted = errors.New("aborted by user")

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// actionable wraps err for display with suggestions matching its kind.
// Errors that are already actionable are returned unchanged.
func actionable(operation, resource string, err error) error {
	if err == nil {
		return nil
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}

	ec := issue.NewErrorContext().WithOperation(operation).WithResource(resource).Wrap(err)
	switch {
	case errors.Is(err, fetch.ErrInsecureSource):
		ec.WithSuggestions(
			"Only https catalog and archive URLs are accepted",
			"Check the system clock and the certificate of the server",
		)
	case errors.Is(err, addon.ErrMalformedCatalog):
		ec.WithSuggestion("The catalog server returned an invalid document; try again later or use another catalog URL")
	case errors.Is(err, depcheck.ErrUnsatisfiableDependency):
		ec.WithSuggestion("Run 'addonctl list --remote' to see which versions are published")
	case errors.Is(err, depcheck.ErrNotInstalled):
		ec.WithSuggestion("Run 'addonctl list' to see the installed add-ons")
	case errors.Is(err, addon.ErrHostVersionIncompatible):
		ec.WithSuggestion("Update the host, or set host_version in the config file if it is out of date")
	case errors.Is(err, download.ErrValidationFailure):
		ec.WithSuggestion("The archive did not match the catalog; it was kept for inspection and not installed")
	case errors.Is(err, update.ErrArchiveConflict):
		ec.WithSuggestion("Rename the archive or remove the stored copy from the archive directory")
	case errors.Is(err, lifecycle.ErrFileConflict):
		ec.WithSuggestion("Another add-on or a user file occupies the path; remove it and install again")
	case errors.Is(err, lifecycle.ErrPartialUninstall):
		ec.WithSuggestion("Restart the host to finish removing the add-on")
	case errors.Is(err, hostenv.ErrOutsideRoot):
		ec.WithSuggestion("The add-on declares a file outside the managed root; nothing outside it was touched")
	case errors.Is(err, os.ErrPermission):
		ec.WithSuggestion("Check the permissions of the managed root and the archive directory")
	}
	return ec.BuildError()
}

// printError writes err to w. In verbose mode the issue guide matching the
// error is rendered below it.
func printError(w io.Writer, err error, verbose bool, colorScheme string) {
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
	if !verbose {
		return
	}

	var guide *issue.Issue
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		guide = ae.Guide()
	} else {
		guide = issue.ForError(err)
	}
	if guide == nil {
		return
	}
	rendered, renderErr := guide.Render(colorScheme)
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

// classifyExitCode maps an error to the process exit code: 1 for failures
// the user can correct, 2 for everything else.
func classifyExitCode(err error) int {
	switch {
	case errors.Is(err, errAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, update.ErrNoCatalogURL),
		errors.Is(err, depcheck.ErrUnsatisfiableDependency),
		errors.Is(err, depcheck.ErrDisplacesDependents),
		errors.Is(err, depcheck.ErrNotInstalled),
		errors.Is(err, addon.ErrHostVersionIncompatible),
		errors.Is(err, update.ErrArchiveConflict),
		errors.Is(err, os.ErrPermission),
		errors.Is(err, os.ErrNotExist):
		return 1
	default:
		return 2
	}
}
