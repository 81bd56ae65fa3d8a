package utils_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-gateway/internal/utils"
)

func respond(t *testing.T, handler fiber.Handler) (int, map[string]json.RawMessage) {
	t.Helper()

	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestOKCarriesHistoryMeta(t *testing.T) {
	status, body := respond(t, func(c *fiber.Ctx) error {
		return utils.OK(c, []string{"hi"}, "", fiber.Map{"hasMore": true})
	})

	require.Equal(t, fiber.StatusOK, status)
	require.JSONEq(t, `true`, string(body["success"]))
	require.JSONEq(t, `"success"`, string(body["message"]))
	require.JSONEq(t, `["hi"]`, string(body["data"]))
	require.JSONEq(t, `{"hasMore":true}`, string(body["meta"]))
	require.NotContains(t, body, "details")
}

func TestFailListsValidationDetails(t *testing.T) {
	status, body := respond(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusBadRequest, "Invalid data", []string{"limit: must be at most 100"})
	})

	require.Equal(t, fiber.StatusBadRequest, status)
	require.JSONEq(t, `false`, string(body["success"]))
	require.JSONEq(t, `"Invalid data"`, string(body["message"]))
	require.JSONEq(t, `["limit: must be at most 100"]`, string(body["details"]))
	require.NotContains(t, body, "data")
}

func TestSendErrorDefaultsMessage(t *testing.T) {
	status, body := respond(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusNotFound, "")
	})

	require.Equal(t, fiber.StatusNotFound, status)
	require.JSONEq(t, `"error"`, string(body["message"]))
	require.NotContains(t, body, "details")
}
