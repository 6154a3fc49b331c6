// Package doc implements the doc command group operating on a document store.
package doc
