package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	internal_http "github.com/agenticsorg/sparc-bench/internal/http"
	"github.com/agenticsorg/sparc-bench/internal/log"
	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/service"
	"github.com/agenticsorg/sparc-bench/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T, n int) (*httptest.Server, []string) {
	t.Helper()
	store := storage.NewMockStore()
	svc := service.NewTaskService(store, log.GetLogger())
	ids := make([]string, 0, n)
	tasks := make([]models.Task, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("astropy__astropy-%04d", i)
		tasks = append(tasks, models.Task{
			InstanceID:       id,
			Repo:             "astropy/astropy",
			BaseCommit:       fmt.Sprintf("aa%04d", i),
			ProblemStatement: "WCS transformations ignore the SIP distortion coefficients when the header is rebuilt.",
			Patch:            "diff --git a/astropy/wcs/wcs.py b/astropy/wcs/wcs.py\n",
			TestPatch:        "diff --git a/astropy/wcs/tests/test_wcs.py b/astropy/wcs/tests/test_wcs.py\n",
			FailToPass:       `["astropy/wcs/tests/test_wcs.py::test_sip"]`,
		})
		ids = append(ids, id)
	}
	_, err := svc.ImportTasks(tasks)
	assert.NoError(t, err)
	srv := httptest.NewServer(internal_http.NewServer(svc))
	t.Cleanup(srv.Close)
	return srv, ids
}

func getJSON(t *testing.T, client *http.Client, url string, out interface{}) int {
	t.Helper()
	resp, err := client.Get(url)
	assert.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func doJSON(t *testing.T, client *http.Client, method, url string, body string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer(t *testing.T) {
	t.Run("HealthCheck", func(t *testing.T) {
		srv, _ := newTestServer(t, 0)
		var body map[string]string
		code := getJSON(t, srv.Client(), srv.URL+"/health", &body)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("NextTaskHidesSolution", func(t *testing.T) {
		srv, _ := newTestServer(t, 2)
		resp, err := srv.Client().Get(srv.URL + "/tasks/next")
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		assert.NoError(t, err)
		assert.NotContains(t, string(raw), `"patch"`)
		assert.NotContains(t, string(raw), `"test_patch"`)

		var task models.AvailableTask
		assert.NoError(t, json.Unmarshal(raw, &task))
		assert.NotEmpty(t, task.InstanceID)
		assert.NotEmpty(t, task.ProblemStatement)
	})

	t.Run("NextTaskWithExclusions", func(t *testing.T) {
		srv, _ := newTestServer(t, 2)
		code := getJSON(t, srv.Client(), srv.URL+"/tasks/next?exclude=astropy/astropy", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("StartLogStepsAndComplete", func(t *testing.T) {
		srv, ids := newTestServer(t, 1)
		client := srv.Client()
		base := srv.URL + "/tasks/" + ids[0]

		code := doJSON(t, client, http.MethodPost, base+"/start", "", nil)
		assert.Equal(t, http.StatusOK, code)

		for i := 1; i <= 3; i++ {
			var stepResp struct {
				Step int `json:"step"`
			}
			code = doJSON(t, client, http.MethodPost, base+"/steps",
				fmt.Sprintf(`{"description":"step %d"}`, i), &stepResp)
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, i, stepResp.Step)
		}

		code = doJSON(t, client, http.MethodPut, base+"/status",
			`{"status":"completed","details":"all done"}`, nil)
		assert.Equal(t, http.StatusOK, code)

		var details models.TaskDetails
		code = getJSON(t, client, base, &details)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, models.CompletedStatus, details.CompletionStatus)
		assert.Equal(t, 3, details.StepsTaken)
		assert.Len(t, details.StepEntries, 3)
	})

	t.Run("TaskDetailsHideSolution", func(t *testing.T) {
		srv, ids := newTestServer(t, 1)
		client := srv.Client()
		base := srv.URL + "/tasks/" + ids[0]
		assert.Equal(t, http.StatusOK, doJSON(t, client, http.MethodPost, base+"/start", "", nil))

		resp, err := client.Get(base)
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		assert.NoError(t, err)
		assert.NotContains(t, string(raw), `"patch"`)
		assert.NotContains(t, string(raw), `"test_patch"`)
		assert.Contains(t, string(raw), `"in_progress"`)
	})

	t.Run("InvalidStatusReturns400", func(t *testing.T) {
		srv, ids := newTestServer(t, 1)
		code := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/tasks/"+ids[0]+"/status",
			`{"status":"wrapped-up"}`, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("MissingStepDescriptionReturns400", func(t *testing.T) {
		srv, ids := newTestServer(t, 1)
		code := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/tasks/"+ids[0]+"/steps", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("SolutionGating", func(t *testing.T) {
		srv, ids := newTestServer(t, 1)
		client := srv.Client()
		base := srv.URL + "/tasks/" + ids[0]

		code := getJSON(t, client, base+"/solution", nil)
		assert.Equal(t, http.StatusConflict, code)

		assert.Equal(t, http.StatusOK, doJSON(t, client, http.MethodPost, base+"/start", "", nil))
		assert.Equal(t, http.StatusOK, doJSON(t, client, http.MethodPut, base+"/status", `{"status":"completed"}`, nil))

		var solution models.Solution
		code = getJSON(t, client, base+"/solution", &solution)
		assert.Equal(t, http.StatusOK, code)
		assert.NotEmpty(t, solution.Patch)
		assert.NotEmpty(t, solution.TestPatch)
	})

	t.Run("UnknownTaskReturns404", func(t *testing.T) {
		srv, _ := newTestServer(t, 1)
		code := getJSON(t, srv.Client(), srv.URL+"/tasks/missing__missing-1", nil)
		assert.Equal(t, http.StatusNotFound, code)

		code = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/tasks/missing__missing-1/start", "", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("Reports", func(t *testing.T) {
		srv, ids := newTestServer(t, 3)
		client := srv.Client()
		base := srv.URL + "/tasks/" + ids[0]
		assert.Equal(t, http.StatusOK, doJSON(t, client, http.MethodPost, base+"/start", "", nil))
		assert.Equal(t, http.StatusOK, doJSON(t, client, http.MethodPost, base+"/steps", `{"description":"did a thing"}`, nil))
		assert.Equal(t, http.StatusOK, doJSON(t, client, http.MethodPut, base+"/status", `{"status":"completed"}`, nil))

		var summary []models.StatusCount
		code := getJSON(t, client, srv.URL+"/reports/summary", &summary)
		assert.Equal(t, http.StatusOK, code)
		total := 0
		pct := 0.0
		for _, row := range summary {
			total += row.Count
			pct += row.Percentage
		}
		assert.Equal(t, 3, total)
		assert.InDelta(t, 100.0, pct, 0.1)

		var repos []models.RepoStatistics
		code = getJSON(t, client, srv.URL+"/reports/repositories", &repos)
		assert.Equal(t, http.StatusOK, code)
		assert.Len(t, repos, 1)
		assert.Equal(t, 3, repos[0].TotalTasks)

		var analytics models.StepAnalytics
		code = getJSON(t, client, srv.URL+"/reports/steps", &analytics)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, 1, analytics.TasksWithSteps)
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		srv, ids := newTestServer(t, 1)
		code := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/tasks/"+ids[0]+"/solution", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, code)
	})
}
