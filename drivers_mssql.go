//go:build mssql || all_adapters

package main

// SQL Server support is opt-in: build with -tags mssql (or all_adapters)
// to link the go-mssqldb driver.
import _ "github.com/veildata/veil-engine/pkg/adapters/warehouse/mssql"
