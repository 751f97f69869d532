// Package types provides core types shared across memflow packages.
// This package has ZERO dependencies on other memflow packages to avoid
// circular imports. All other packages should import types from here.
package types
