//go:build linux

package service

import (
	"strings"
	"testing"
)

func TestUnitTemplateRenders(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	err := unitTemplate.Execute(&b, installContext{
		Executable: "/usr/local/bin/zephyr",
		Username:   "deploy",
	})
	if err != nil {
		t.Fatal(err)
	}
	unit := b.String()

	for _, want := range []string{
		"Description=Zephyr Task Scheduler",
		"Type=notify",
		"User=deploy",
		"ExecStart=/usr/local/bin/zephyr",
		"Restart=always",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("unit file missing %q:\n%s", want, unit)
		}
	}
}
