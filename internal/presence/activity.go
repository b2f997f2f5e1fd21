package presence

import (
	"time"

	"tools.zach/dev/codecord/internal/config"
	"tools.zach/dev/codecord/internal/discord"
	"tools.zach/dev/codecord/internal/editor"
	"tools.zach/dev/codecord/internal/langs"
)

// Snapshot is the presence card computed from the editor's current state.
type Snapshot struct {
	Details        string
	State          string
	StartTimestamp int64 // Unix seconds; 0 omits the elapsed timer
	LargeImageKey  string
	LargeImageText string
	SmallImageKey  string
	SmallImageText string
	Instance       bool
}

// BuildSnapshot renders the card for doc, or the idle card when active is
// false or doc matches a privacy ignore pattern. start is the time reported
// when timestamps.mode is "session"; "publish" mode uses now.
func BuildSnapshot(cfg *config.Config, lm *langs.Map, doc editor.Document, active bool, start, now time.Time) Snapshot {
	d := cfg.Display
	s := Snapshot{
		SmallImageKey:  d.Assets.SmallImage,
		SmallImageText: d.Assets.SmallText,
	}

	switch d.Timestamps.Mode {
	case config.TimestampSession:
		if !start.IsZero() {
			s.StartTimestamp = start.Unix()
		}
	case config.TimestampNone:
	default:
		s.StartTimestamp = now.Unix()
	}

	if !active || cfg.IsIgnored(doc.Path) {
		s.Details = d.IdleDetails
		s.State = d.IdleState
		s.LargeImageKey = d.Assets.IdleImage
		s.LargeImageText = d.Assets.IdleText
		return s
	}

	ext := doc.Ext()
	vars := config.TemplateVars{
		File:      cfg.FileName(doc.BaseName()),
		Ext:       ext,
		Language:  lm.Name(ext, doc.LanguageID),
		Workspace: cfg.WorkspaceName(doc.WorkspaceFolder),
	}
	s.Details = config.Render(d.Details, vars)
	s.State = config.Render(d.State, vars)
	s.LargeImageKey = lm.AssetKey(ext, d.Assets.DefaultImage)
	s.LargeImageText = config.Render(d.Assets.LargeText, vars)
	return s
}

// Activity converts s to the wire shape sent over IPC.
func (s Snapshot) Activity() *discord.Activity {
	a := &discord.Activity{
		Details:  s.Details,
		State:    s.State,
		Instance: s.Instance,
		Assets: &discord.Assets{
			LargeImage: s.LargeImageKey,
			LargeText:  s.LargeImageText,
			SmallImage: s.SmallImageKey,
			SmallText:  s.SmallImageText,
		},
	}
	if s.StartTimestamp != 0 {
		a.Timestamps = &discord.Timestamps{Start: s.StartTimestamp}
	}
	return a
}
