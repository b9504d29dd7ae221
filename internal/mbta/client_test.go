package mbta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const predictionsBody = `{
  "data": [
    {
      "id": "prediction-1",
      "type": "prediction",
      "attributes": {
        "departure_time": "2026-08-30T07:05:00-04:00",
        "arrival_time": "2026-08-30T07:04:30-04:00",
        "stop_sequence": 10,
        "schedule_relationship": null
      },
      "relationships": {
        "trip": {"data": {"id": "trip-1", "type": "trip"}},
        "stop": {"data": {"id": "5483", "type": "stop"}},
        "vehicle": {"data": {"id": "y1234", "type": "vehicle"}}
      }
    },
    {
      "id": "prediction-2",
      "type": "prediction",
      "attributes": {
        "departure_time": null,
        "schedule_relationship": "CANCELLED"
      },
      "relationships": {
        "trip": {"data": {"id": "trip-2", "type": "trip"}},
        "vehicle": {"data": null}
      }
    }
  ],
  "included": [
    {
      "id": "y1234",
      "type": "vehicle",
      "attributes": {
        "direction_id": 1,
        "current_stop_sequence": 22,
        "updated_at": "2026-08-30T07:00:10-04:00"
      }
    }
  ]
}`

func TestPredictions(t *testing.T) {
	var gotRequest *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequest = r
		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.Write([]byte(predictionsBody))
	}))
	defer server.Close()

	client := NewClient("secret", nil).WithBaseURL(server.URL)
	preds, err := client.Predictions(context.Background(), "109", "5483", 1, PredictionFieldsBoarding)
	require.NoError(t, err)
	require.Len(t, preds, 2)

	assert.Equal(t, "/predictions", gotRequest.URL.Path)
	query := gotRequest.URL.Query()
	assert.Equal(t, "109", query.Get("filter[route]"))
	assert.Equal(t, "5483", query.Get("filter[stop]"))
	assert.Equal(t, "1", query.Get("filter[direction_id]"))
	assert.Equal(t, PredictionFieldsBoarding, query.Get("fields[prediction]"))
	assert.Equal(t, "secret", gotRequest.Header.Get("x-api-key"))
	assert.Equal(t, "application/vnd.api+json", gotRequest.Header.Get("Accept"))

	first := preds[0]
	assert.Equal(t, "trip-1", first.TripID())
	assert.Equal(t, "5483", first.StopID())
	assert.Equal(t, "y1234", first.VehicleID())
	dep, ok := first.DepartureTime()
	require.True(t, ok)
	assert.Equal(t, 5, dep.Minute())
	require.NotNil(t, first.Attributes.StopSequence)
	assert.Equal(t, 10, *first.Attributes.StopSequence)

	second := preds[1]
	assert.Equal(t, "", second.VehicleID())
	_, ok = second.DepartureTime()
	assert.False(t, ok)
	require.NotNil(t, second.Attributes.ScheduleRelationship)
	assert.Equal(t, "CANCELLED", *second.Attributes.ScheduleRelationship)
}

func TestPredictionsWithVehiclesKeepsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vehicle,trip", r.URL.Query().Get("include"))
		w.Write([]byte(predictionsBody))
	}))
	defer server.Close()

	client := NewClient("", nil).WithBaseURL(server.URL)
	doc, err := client.PredictionsWithVehicles(context.Background(), "109")
	require.NoError(t, err)

	assert.Len(t, doc.Data, 2)
	assert.Len(t, doc.Included, 1)
	assert.JSONEq(t, predictionsBody, string(doc.Body))
}

func TestAnonymousRequestOmitsKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Api-Key"]
		assert.False(t, present)
		w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	client := NewClient("", nil).WithBaseURL(server.URL)
	_, err := client.Vehicles(context.Background(), "109")
	require.NoError(t, err)
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"status":"403"}]}`))
	}))
	defer server.Close()

	client := NewClient("bad-key", nil).WithBaseURL(server.URL)
	_, err := client.Predictions(context.Background(), "109", "5483", 1, "")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "403")
}

func TestVehiclesByID(t *testing.T) {
	fleet := []Resource{{ID: "y1", Type: "vehicle"}, {ID: "y2", Type: "vehicle"}}
	byID := VehiclesByID(fleet)
	require.Len(t, byID, 2)
	assert.Equal(t, "y2", byID["y2"].ID)
}
