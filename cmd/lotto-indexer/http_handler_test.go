package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fystack/lotto-indexer/internal/stats"
	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/fystack/lotto-indexer/pkg/kvstore"
	"github.com/fystack/lotto-indexer/pkg/store/coverstore"
	"github.com/fystack/lotto-indexer/pkg/store/drawstore"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"github.com/stretchr/testify/suite"
)

type HTTPHandlerTestSuite struct {
	suite.Suite
	kv      infra.KVStore
	covers  coverstore.Store
	handler http.Handler
}

func (s *HTTPHandlerTestSuite) SetupTest() {
	kv, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	s.Require().NoError(err)
	s.kv = kv

	draws := drawstore.NewDrawStore(kv)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = draws.SaveDraws(context.Background(), "mini", []types.Draw{
		{Date: day, Numbers: []int{3, 1, 2}},
		{Date: day.AddDate(0, 0, 3), Numbers: []int{8, 4, 6}},
	})
	s.Require().NoError(err)

	s.covers = coverstore.NewCoverStore(kv)
	games := config.Games{
		"mini": {Code: "mini", Name: "Mini", MaxNumber: 8, PickSize: 3, DrawInterval: 72 * time.Hour},
	}
	h := NewLottoHTTPHandler("test", games, draws, recordstore.NewRecordStore(kv), s.covers, nil)
	h.now = func() time.Time { return day.AddDate(0, 0, 4) }
	s.handler = h.Routes()
}

func (s *HTTPHandlerTestSuite) TearDownTest() {
	s.NoError(s.kv.Close())
}

func (s *HTTPHandlerTestSuite) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (s *HTTPHandlerTestSuite) TestHealth() {
	rec := s.get("/health")
	s.Equal(http.StatusOK, rec.Code)

	var body HealthResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	s.Equal("ok", body.Status)
	s.Equal("test", body.Version)
}

func (s *HTTPHandlerTestSuite) TestLotteryData() {
	rec := s.get("/api/lottery-data?game=mini")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("application/json", rec.Header().Get("Content-Type"))

	var body stats.DashboardSummary
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	s.Equal("mini", body.Game)
	s.EqualValues(2, body.TotalDraws)
	s.Require().Len(body.RecentDraws, 2)
	s.Equal([]int{8, 4, 6}, body.RecentDraws[0].Numbers)
	s.Len(body.Frequency.Numbers, 8)
	s.Equal([2]int{6, 18}, body.SumAnalysis.Range)
}

func (s *HTTPHandlerTestSuite) TestDefaultGame() {
	rec := s.get("/api/recent-draws?limit=1")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body []stats.RecentDraw
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	s.Require().Len(body, 1)
	s.Equal([]int{8, 4, 6}, body[0].Numbers)
}

func (s *HTTPHandlerTestSuite) TestErrors() {
	s.Equal(http.StatusNotFound, s.get("/api/lottery-data?game=nope").Code)
	s.Equal(http.StatusBadRequest, s.get("/api/recent-draws?limit=zero").Code)
	s.Equal(http.StatusBadRequest, s.get("/api/cover/mini/not-a-signature").Code)
	s.Equal(http.StatusNotFound, s.get("/api/cover/mini/6-2-1").Code)

	var body APIErrorResponse
	s.Require().NoError(json.NewDecoder(s.get("/api/buckets/nope").Body).Decode(&body))
	s.Equal("error", body.Status)
}

func (s *HTTPHandlerTestSuite) TestCoverSets() {
	sig := types.Signature{Sum: 6, Even: 1, Odd: 2}
	s.Require().NoError(s.covers.PersistCoverSet("mini", types.CoverSet{
		Signature: sig,
		Records:   []types.CombinationRecord{{Numbers: types.Combination{1, 2, 3}, Sum: 6, Even: 1, Odd: 2}},
	}))

	rec := s.get("/api/cover/mini/6-1-2")
	s.Require().Equal(http.StatusOK, rec.Code)
	var set types.CoverSet
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&set))
	s.Equal(sig, set.Signature)
	s.Require().Len(set.Records, 1)

	rec = s.get("/api/cover/mini")
	s.Require().Equal(http.StatusOK, rec.Code)
	var sets []types.CoverSet
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&sets))
	s.Len(sets, 1)
}

func (s *HTTPHandlerTestSuite) TestBucketsEmpty() {
	rec := s.get("/api/buckets/mini")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq("[]", rec.Body.String())
}

func (s *HTTPHandlerTestSuite) TestDashboard() {
	rec := s.get("/dashboard/mini")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "echarts")
}

func TestHTTPHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HTTPHandlerTestSuite))
}
