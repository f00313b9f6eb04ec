//go:build mssql || all_adapters

package mssql

import (
	"context"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.AdapterInfo{
			Driver:      "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+ and Azure SQL Database",
			NativeHTTP:  false,
		},
		Factory: func(ctx context.Context, config map[string]any) (warehouse.Adapter, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg)
		},
	})
}
