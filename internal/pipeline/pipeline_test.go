package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxops/autotag/internal/config"
	"github.com/inboxops/autotag/internal/model"
	"github.com/inboxops/autotag/internal/nomenclature"
)

const settlementMsg = "Seguí los pasos a continuación para que tu acr3dit4ci0n se procese sin demoras."

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		RestartSecs:  30,
		DatePolicy:   config.DatePolicyAny,
		WriteRetries: 3,
	}
}

func testClock(t *testing.T) (func() time.Time, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation(nomenclature.DefaultTimezone)
	require.NoError(t, err)
	at := time.Date(2025, 12, 11, 15, 0, 0, 0, loc)
	return func() time.Time { return at }, loc
}

func testPanelTable() *fakePanels {
	return &fakePanels{byName: map[string]model.Resolution{
		"Panel Goatgaming2": {ID: 10, Name: "Goatgaming2"},
		"Panel Scalo":       {ID: 26, Name: "Scalo"},
	}}
}

func newTestPipeline(t *testing.T, ib *fakeInbox, letters *fakeLetters) (*Pipeline, *fakeAudit, *fakeAlerter) {
	t.Helper()
	now, _ := testClock(t)
	builder, err := nomenclature.NewBuilder("")
	require.NoError(t, err)
	audit := newFakeAudit()
	alerter := &fakeAlerter{}
	p := New(testConfig(), ib, ib, testPanelTable(), letters, builder, audit, alerter).WithClock(now)
	return p, audit, alerter
}

func TestPipeline_TagsReferralConversation(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola, vengo por la promo",
				TimeLabel: "Hace 20 minutos", Links: []string{"https://fb.me/2abc"}},
			{Author: model.RoleOperator, Text: "Bienvenido!"},
		},
	})
	letters := newFakeLetters(map[string]string{"https://fb.me/2abc": "B"})
	p, audit, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, "11-12-10B", ib.notes["conv-1"])
	assert.Equal(t, map[string]string{"11-12-10B": "Goatgaming2"}, audit.saved)
}

func TestPipeline_SecondRunIsIdempotent(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "Hace 20 minutos", Links: []string{"https://fb.me/2abc"}},
		},
	})
	letters := newFakeLetters(map[string]string{"https://fb.me/2abc": "B"})
	p, _, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))
	writesAfterFirst := ib.writes
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, writesAfterFirst, ib.writes)
	assert.Equal(t, "11-12-10B", ib.notes["conv-1"])
}

func TestPipeline_SettledMarkerOnFirstCode(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "Hace 20 minutos",
				Links:     []string{"https://fb.me/2abc", "https://instagram.com/p/xyz"}},
			{Author: model.RoleOperator, Text: settlementMsg},
		},
	})
	letters := newFakeLetters(map[string]string{
		"https://fb.me/2abc":          "B",
		"https://instagram.com/p/xyz": "C",
	})
	p, _, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, "11-12-10B!, 11-12-10C", ib.notes["conv-1"])
}

func TestPipeline_LoneCodeWithoutReferrals(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Scalo",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Consulta", TimeLabel: "Hace 2 horas"},
			{Author: model.RoleOperator, Text: settlementMsg},
		},
	})
	p, _, _ := newTestPipeline(t, ib, newFakeLetters(nil))

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, "11-12-26!", ib.notes["conv-1"])
}

func TestPipeline_SkipsWithoutReferralsOrDate(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Scalo",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Consulta", TimeLabel: "En línea"},
		},
	})
	p, _, _ := newTestPipeline(t, ib, newFakeLetters(nil))

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 0, ib.writes)
}

func TestPipeline_SkipsReferralWithoutTimeLabel(t *testing.T) {
	// A referral link only counts when its message carries a parseable
	// time label; "En línea" is a presence indicator, not a timestamp.
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "En línea", Links: []string{"https://fb.me/2abc"}},
		},
	})
	letters := newFakeLetters(map[string]string{"https://fb.me/2abc": "B"})
	p, audit, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 0, ib.writes)
	assert.Empty(t, audit.saved)
}

func TestPipeline_UnknownPanelDegradesToIDZero(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Desconocido",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "Hace 20 minutos", Links: []string{"https://fb.me/2abc"}},
		},
	})
	letters := newFakeLetters(map[string]string{"https://fb.me/2abc": "B"})
	p, audit, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, "11-12-0B", ib.notes["conv-1"])
	assert.Equal(t, "Panel Desconocido", audit.saved["11-12-0B"])
}

func TestPipeline_AwaitsLetterDecisionThenTags(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "Hace 20 minutos", Links: []string{"https://fb.me/2new"}},
		},
	})
	letters := newFakeLetters(nil)
	// The human answers "D" while the pipeline waits on the queue.
	letters.decisions["https://fb.me/2new"] = "D"
	p, audit, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, "11-12-10D", ib.notes["conv-1"])
	assert.Equal(t, "Goatgaming2", audit.saved["11-12-10D"])
}

func TestPipeline_DropsSkippedReferralOnRevisit(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "Hace 20 minutos", Links: []string{"https://fb.me/2new"}},
		},
	})
	// Queue drains with no decision recorded (the human skipped).
	letters := newFakeLetters(nil)
	p, _, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 0, ib.writes)
}

func TestPipeline_PartialDecisionTagsDecidedOnly(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "Hace 20 minutos",
				Links:     []string{"https://fb.me/2one", "https://fb.me/2two"}},
		},
	})
	letters := newFakeLetters(nil)
	letters.decisions["https://fb.me/2one"] = "A"
	// 2two is skipped by the human.
	p, _, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, "11-12-10A", ib.notes["conv-1"])
}

func TestPipeline_LetterlessUpgradeOnLaterRun(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "Hace 20 minutos", Links: []string{"https://fb.me/2abc"}},
		},
	})
	ib.notes["conv-1"] = "11-12-10!"
	letters := newFakeLetters(map[string]string{"https://fb.me/2abc": "B"})
	p, _, _ := newTestPipeline(t, ib, letters)

	require.NoError(t, p.RunOnce(context.Background()))

	// The lettered code replaces the letterless entry and keeps the
	// settlement marker.
	assert.Equal(t, "11-12-10B!", ib.notes["conv-1"])
}

func TestPipeline_LockedAccountAlertsOncePerPanel(t *testing.T) {
	locked := model.Message{Author: model.RoleOperator, Text: "Business Account locked"}
	ib := newFakeInbox(
		model.Conversation{
			ID: "conv-1", PanelName: "Panel Goatgaming2",
			Messages: []model.Message{locked},
		},
		model.Conversation{
			ID: "conv-2", PanelName: "Panel Goatgaming2",
			Messages: []model.Message{locked},
		},
	)
	p, _, alerter := newTestPipeline(t, ib, newFakeLetters(nil))

	require.NoError(t, p.RunOnce(context.Background()))

	require.Len(t, alerter.sent, 1)
	alert := alerter.sent[0]
	assert.Equal(t, "Goatgaming2", alert.Name)
	assert.Equal(t, []string{"conv-1"}, alert.Numbers)
	assert.Equal(t, "account_locked", alert.Type)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, 0, ib.writes)
}

func TestPipeline_WriteRetriesRecoverTransientFailure(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Scalo",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola", TimeLabel: "Hace 1 hora"},
		},
	})
	ib.writeFailures = 2
	p, _, _ := newTestPipeline(t, ib, newFakeLetters(nil))

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, "11-12-26", ib.notes["conv-1"])
	assert.Equal(t, 3, ib.writes)
}

func TestPipeline_WriteRetriesExhausted(t *testing.T) {
	ib := newFakeInbox(model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Scalo",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola", TimeLabel: "Hace 1 hora"},
		},
	})
	ib.writeFailures = 10
	p, _, _ := newTestPipeline(t, ib, newFakeLetters(nil))

	// The pass completes; the failed conversation is logged and dropped.
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Empty(t, ib.notes["conv-1"])
	assert.Equal(t, 3, ib.writes)
}

func TestPipeline_TodayPolicyRejectsOldDates(t *testing.T) {
	conv := model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Scalo",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Hola",
				TimeLabel: "09/12/2025 a las 06:42 PM"},
		},
	}

	now, _ := testClock(t)
	builder, err := nomenclature.NewBuilder("")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.DatePolicy = config.DatePolicyToday
	ib := newFakeInbox(conv)
	p := New(cfg, ib, ib, testPanelTable(), newFakeLetters(nil), builder, nil, nil).WithClock(now)
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 0, ib.writes)

	// The permissive policy accepts the same conversation.
	cfg.DatePolicy = config.DatePolicyAny
	ib2 := newFakeInbox(conv)
	p2 := New(cfg, ib2, ib2, testPanelTable(), newFakeLetters(nil), builder, nil, nil).WithClock(now)
	require.NoError(t, p2.RunOnce(context.Background()))
	assert.Equal(t, "11-12-26", ib2.notes["conv-1"])
}

func TestPipeline_TodayPolicyRejectsOldReferrals(t *testing.T) {
	// The strict policy applies to each referral's own timestamp, not
	// just the first message: a referral stamped two days back must not
	// be tagged with today's code.
	conv := model.Conversation{
		ID:        "conv-1",
		PanelName: "Panel Goatgaming2",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, Text: "Vengo por la promo",
				TimeLabel: "09/12/2025 a las 06:42 PM",
				Links:     []string{"https://fb.me/2abc"}},
		},
	}

	now, _ := testClock(t)
	builder, err := nomenclature.NewBuilder("")
	require.NoError(t, err)
	letters := map[string]string{"https://fb.me/2abc": "B"}

	cfg := testConfig()
	cfg.DatePolicy = config.DatePolicyToday
	ib := newFakeInbox(conv)
	p := New(cfg, ib, ib, testPanelTable(), newFakeLetters(letters), builder, nil, nil).WithClock(now)
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 0, ib.writes)

	cfg.DatePolicy = config.DatePolicyAny
	ib2 := newFakeInbox(conv)
	p2 := New(cfg, ib2, ib2, testPanelTable(), newFakeLetters(letters), builder, nil, nil).WithClock(now)
	require.NoError(t, p2.RunOnce(context.Background()))
	assert.Equal(t, "11-12-10B", ib2.notes["conv-1"])
}

func TestPipeline_RunStopsOnContextCancel(t *testing.T) {
	ib := newFakeInbox()
	p, _, _ := newTestPipeline(t, ib, newFakeLetters(nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestExtract_ReferralFilterAndDedup(t *testing.T) {
	_, loc := testClock(t)
	conv := model.Conversation{
		ID: "conv-1",
		Messages: []model.Message{
			{Author: model.RoleCounterparty, TimeLabel: "Hace 5 minutos", Links: []string{
				"https://fb.me/2abc",
				"https://example.com/not-a-referral",
				"https://instagram.com/p/xyz",
			}},
			{Author: model.RoleCounterparty, TimeLabel: "Hace 10 minutos", Links: []string{
				"https://fb.me/2abc", // duplicate
			}},
			{Author: model.RoleCounterparty, TimeLabel: "En línea", Links: []string{
				"https://fb.me/2untimed",
			}},
		},
	}

	ex := extract(conv, loc)
	require.Len(t, ex.referrals, 2)
	assert.Equal(t, "https://fb.me/2abc", ex.referrals[0].URL)
	assert.Equal(t, "https://instagram.com/p/xyz", ex.referrals[1].URL)
	assert.True(t, ex.referrals[0].Observed.HasRelative)
}
