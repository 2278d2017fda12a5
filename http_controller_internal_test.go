package bank

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var _ router.Context = (*statusRecorder)(nil)

func TestRouteRecordsResponseStatus(t *testing.T) {
	c := &Controller{Logger: defLogger{}}

	ctx := router.NewMockContext()
	ctx.On("Method").Return("POST").Maybe()
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("JSON", http.StatusCreated, mock.Anything).Return(nil).Once()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/widgets", "201"))

	var sawContext bool
	err := c.route("/widgets", func(rc router.Context) error {
		sawContext = rc.Context() != nil
		return rc.JSON(http.StatusCreated, router.ViewContext{"ok": true})
	})(ctx)

	require.NoError(t, err)
	assert.True(t, sawContext)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/widgets", "201")))
	ctx.AssertExpectations(t)
}

func TestRouteRendersHandlerErrors(t *testing.T) {
	c := &Controller{Logger: defLogger{}}

	ctx := router.NewMockContext()
	ctx.On("Method").Return("GET").Maybe()

	var body ErrorResponse
	ctx.On("JSON", http.StatusNotFound, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(ErrorResponse)
	}).Return(nil).Once()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/widgets/:id", "404"))

	err := c.route("/widgets/:id", func(router.Context) error {
		return NewNotFoundError("widget", "w-1")
	})(ctx)

	require.NoError(t, err)
	assert.Equal(t, TextCodeNotFound, body.Error.TextCode)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/widgets/:id", "404")))
	ctx.AssertExpectations(t)
}
