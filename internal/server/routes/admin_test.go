package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/asset-gate/asset-gate/internal/controller"
)

type fakeController struct {
	lastCommand controller.Command
	reply       controller.Reply
	phase       controller.Phase
	generation  string
}

func (f *fakeController) HandleMessage(_ context.Context, cmd controller.Command) controller.Reply {
	f.lastCommand = cmd
	return f.reply
}

func (f *fakeController) Phase() controller.Phase { return f.phase }

func (f *fakeController) ServingGeneration() string { return f.generation }

func newAdminApp(ctrl *fakeController) *fiber.App {
	app := fiber.New()
	RegisterAdminRoutes(app, ctrl, nil)
	return app
}

func TestMessageRouteDispatchesCommand(t *testing.T) {
	ctrl := &fakeController{reply: controller.Reply{Success: true}}
	app := newAdminApp(ctrl)

	req := httptest.NewRequest("POST", "/-/message", strings.NewReader(`{"type":"SKIP_WAITING"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ctrl.lastCommand.Type != controller.CommandSkipWaiting {
		t.Fatalf("command mismatch: %+v", ctrl.lastCommand)
	}

	var reply controller.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !reply.Success {
		t.Fatalf("expected success reply, got %+v", reply)
	}
}

func TestMessageRouteReportsFailureReply(t *testing.T) {
	ctrl := &fakeController{reply: controller.Reply{Success: false, Error: "origin down"}}
	app := newAdminApp(ctrl)

	req := httptest.NewRequest("POST", "/-/message", strings.NewReader(`{"type":"CACHE_VIDEO"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}

	var reply controller.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Success || reply.Error != "origin down" {
		t.Fatalf("failure reply mismatch: %+v", reply)
	}
}

func TestMessageRouteRejectsMalformedPayload(t *testing.T) {
	app := newAdminApp(&fakeController{})

	req := httptest.NewRequest("POST", "/-/message", strings.NewReader(`not-json`))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStatusRouteReportsPhase(t *testing.T) {
	ctrl := &fakeController{phase: controller.PhaseActive, generation: "v3"}
	app := newAdminApp(ctrl)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"phase":"active"`) {
		t.Fatalf("status payload missing phase: %s", body)
	}
	if !strings.Contains(string(body), `"generation":"v3"`) {
		t.Fatalf("status payload missing generation: %s", body)
	}
}
