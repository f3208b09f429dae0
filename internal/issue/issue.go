// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"io/fs"
	"slices"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"

	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/internal/fetch"
	"github.com/invowk/addonctl/internal/hostenv"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/pkg/addon"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	CatalogMalformedId
	InsecureSourceId
	UnsatisfiableDependencyId
	DisplacesDependentsId
	NotInstalledId
	DownloadValidationFailedId
	FileConflictId
	PartialUninstallId
	HostVersionIncompatibleId
	OutsideRootId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also:\n"
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "](" + string(link) + ")\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "](" + string(link) + ")\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load the configuration!

The configuration file could not be read or does not match the schema.

## Things you can try:
- Print the effective configuration:
~~~
$ addonctl config show
~~~
- Check the ADDONCTL_* environment variables, they override the file
- Point to another file:
~~~
$ addonctl --config ./config.cue check
~~~`,
	}

	catalogMalformedIssue = &Issue{
		id: CatalogMalformedId,
		mdMsg: `
# The add-on catalog is malformed!

The catalog was downloaded but could not be parsed. Nothing was changed.

## Things you can try:
- Retry later, the catalog may have been published half-way
- Add a fallback URL to ` + "`catalog_urls`" + ` in your configuration`,
	}

	insecureSourceIssue = &Issue{
		id: InsecureSourceId,
		mdMsg: `
# Refusing an insecure source!

Catalogs and archives are only fetched over https.

## Things you can try:
- Change the URL to use https
- Ask the catalog publisher for an https mirror`,
	}

	unsatisfiableDependencyIssue = &Issue{
		id: UnsatisfiableDependencyId,
		mdMsg: `
# A dependency cannot be satisfied!

An add-on requires another add-on in a version that is neither installed nor
available in the catalog.

## Things you can try:
- Refresh the catalog:
~~~
$ addonctl check
~~~
- Install an older version of the add-on that accepts what is available`,
	}

	displacesDependentsIssue = &Issue{
		id: DisplacesDependentsId,
		mdMsg: `
# The change would remove other add-ons!

Upgrading or removing this add-on leaves installed add-ons without an
acceptable dependency. They are listed above.

## Things you can try:
- Confirm the removal:
~~~
$ addonctl update --yes
~~~
- Wait for newer versions of the dependent add-ons`,
	}

	notInstalledIssue = &Issue{
		id: NotInstalledId,
		mdMsg: `
# The add-on is not installed!

## Things you can try:
- List the installed add-ons:
~~~
$ addonctl list
~~~`,
	}

	downloadValidationFailedIssue = &Issue{
		id: DownloadValidationFailedId,
		mdMsg: `
# A download failed verification!

The archive size or hash does not match the catalog. The add-on was not
installed and the file was kept for inspection in the archive directory.

## Things you can try:
- Retry the operation, the transfer may have been truncated
- Report the mismatch to the catalog publisher if it persists`,
	}

	fileConflictIssue = &Issue{
		id: FileConflictId,
		mdMsg: `
# A file could not be installed!

A declared file collides with an existing directory or could not be written.

## Things you can try:
- Inspect the path shown above inside the managed root
- Check the permissions of the managed root`,
	}

	partialUninstallIssue = &Issue{
		id: PartialUninstallId,
		mdMsg: `
# The add-on was only partially removed!

Some components cannot be unloaded while the host is running. The add-on is
soft-uninstalled and its files are kept.

## Things you can try:
- Restart the host application, then uninstall again`,
	}

	hostVersionIncompatibleIssue = &Issue{
		id: HostVersionIncompatibleId,
		mdMsg: `
# The add-on needs another host version!

## Things you can try:
- Check for a host update:
~~~
$ addonctl check
~~~
- Set ` + "`host_version`" + ` if the configured version is out of date`,
	}

	outsideRootIssue = &Issue{
		id: OutsideRootId,
		mdMsg: `
# A path escapes the managed root!

An add-on declared a file outside the directory it may write to. The
operation was stopped.

## Things you can try:
- Remove the add-on archive and report it to its publisher`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

## Things you can try:
- Check the permissions of the managed root, the archive directory and the ledger
- Configure directories you own with ` + "`managed_root`" + ` and ` + "`archive_dir`",
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():         configLoadFailedIssue,
		catalogMalformedIssue.Id():         catalogMalformedIssue,
		insecureSourceIssue.Id():           insecureSourceIssue,
		unsatisfiableDependencyIssue.Id():  unsatisfiableDependencyIssue,
		displacesDependentsIssue.Id():      displacesDependentsIssue,
		notInstalledIssue.Id():             notInstalledIssue,
		downloadValidationFailedIssue.Id(): downloadValidationFailedIssue,
		fileConflictIssue.Id():             fileConflictIssue,
		partialUninstallIssue.Id():         partialUninstallIssue,
		hostVersionIncompatibleIssue.Id():  hostVersionIncompatibleIssue,
		outsideRootIssue.Id():              outsideRootIssue,
		permissionDeniedIssue.Id():         permissionDeniedIssue,
	}

	// kinds maps error sentinels to their guide, most specific first.
	kinds = []struct {
		sentinel error
		id       Id
	}{
		{hostenv.ErrOutsideRoot, OutsideRootId},
		{fetch.ErrInsecureSource, InsecureSourceId},
		{addon.ErrMalformedCatalog, CatalogMalformedId},
		{download.ErrValidationFailure, DownloadValidationFailedId},
		{addon.ErrHostVersionIncompatible, HostVersionIncompatibleId},
		{depcheck.ErrDisplacesDependents, DisplacesDependentsId},
		{depcheck.ErrUnsatisfiableDependency, UnsatisfiableDependencyId},
		{depcheck.ErrNotInstalled, NotInstalledId},
		{lifecycle.ErrPartialUninstall, PartialUninstallId},
		{lifecycle.ErrFileConflict, FileConflictId},
		{fs.ErrPermission, PermissionDeniedId},
	}
)

// Values returns every guide ordered by ID.
func Values() []*Issue {
	out := maps.Values(issues)
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}

// ForError returns the guide for the first known error kind in err's chain,
// or nil.
func ForError(err error) *Issue {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return issues[k.id]
		}
	}
	return nil
}
