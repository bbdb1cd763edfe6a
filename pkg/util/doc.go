// Package util provides the generic set shared by the router, catalog
// loader and mount registry. The call subpackage runs ordered startup and
// shutdown steps
package util
