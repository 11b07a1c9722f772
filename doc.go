/*
Package appmirror is a tool for mirroring app market catalogs such as
app-index.sandstorm.io.

appmirror fetches the catalog index and, for every app it lists, the
metadata document, the image and the package.  The result is a static
directory tree that can be served as a drop-in copy of the catalog:

	public/apps/index.json
	public/apps/<appId>.json
	public/images/<imageId>
	public/packages/<packageId>

The destination is recreated from scratch on every run and the first
failed download aborts the run.

The main packages are:

	github.com/mirrorctl/appmirror/internal/catalog - catalog index format
	github.com/mirrorctl/appmirror/internal/mirror  - synchronization, HTTP fetching and the destination tree
	github.com/mirrorctl/appmirror/cmd/appmirror    - Command-line interface
*/
package appmirror
