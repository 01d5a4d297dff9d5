// Package builtin registers the check types shipped with watchful.
package builtin

import (
	"fmt"

	"github.com/kylerisse/watchful/pkg/check"
	"github.com/kylerisse/watchful/pkg/check/diskusage"
	"github.com/kylerisse/watchful/pkg/check/dns"
	"github.com/kylerisse/watchful/pkg/check/ping"
	"github.com/kylerisse/watchful/pkg/check/raid"
	"github.com/kylerisse/watchful/pkg/check/ramswap"
	"github.com/kylerisse/watchful/pkg/check/servicestatus"
	"github.com/kylerisse/watchful/pkg/check/temperature"
	"github.com/kylerisse/watchful/pkg/check/web"
	"github.com/kylerisse/watchful/pkg/check/wifistations"
)

// Register adds every built-in check type to reg.
func Register(reg *check.Registry) error {
	factories := []struct {
		name    string
		factory check.Factory
	}{
		{ping.TypeName, ping.Factory},
		{dns.TypeName, dns.Factory},
		{web.TypeName, web.Factory},
		{diskusage.TypeName, diskusage.Factory},
		{wifistations.TypeName, wifistations.Factory},
		{temperature.TypeName, temperature.Factory},
		{raid.TypeName, raid.Factory},
		{servicestatus.TypeName, servicestatus.Factory},
		{ramswap.TypeName, ramswap.Factory},
	}
	for _, f := range factories {
		if err := reg.Register(f.name, f.factory); err != nil {
			return fmt.Errorf("builtin: %w", err)
		}
	}
	return nil
}

// Registry returns a new registry holding every built-in check type.
func Registry() *check.Registry {
	reg := check.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
