package version

import (
	"runtime/debug"
	"testing"
)

func TestInfo_Fill(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2025-03-04T09:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	t.Run("vcs stamp fills blanks", func(t *testing.T) {
		i := Info{Version: "dev"}
		i.fill(settings)
		if i.Commit != "0123456789abcdef" || i.Date != "2025-03-04T09:00:00Z" || !i.Modified {
			t.Errorf("fill() = %+v", i)
		}
	})

	t.Run("ldflags win", func(t *testing.T) {
		i := Info{Version: "v1.0.0", Commit: "feedbee", Date: "today"}
		i.fill(settings)
		if i.Commit != "feedbee" || i.Date != "today" {
			t.Errorf("fill() = %+v", i)
		}
	})
}

func TestInfo_String(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "dev", Commit: "unknown"}, "dev"},
		{Info{Version: "v1.2.0", Commit: "0123456789abcdef"}, "v1.2.0 (0123456)"},
		{Info{Version: "dev", Commit: "abc", Modified: true}, "dev (abc, modified)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	i := Get()
	if i.Version == "" || i.Commit == "" || i.Date == "" || i.GoVersion == "" {
		t.Errorf("Get() = %+v, want every field set", i)
	}
}
