package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	manifestmocks "github.com/stacklok/manifest-sync/internal/manifest/mocks"
	"github.com/stacklok/manifest-sync/internal/otel"
	"github.com/stacklok/manifest-sync/internal/sink"
	sinkmocks "github.com/stacklok/manifest-sync/internal/sink/mocks"
)

func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestPerformPass_RecordsSpan(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := manifestmocks.NewMockFetcher(ctrl)
	mockSink := sinkmocks.NewMockSink(ctrl)
	exporter, tp := newTestTracer(t)

	fetcher.EXPECT().SourceURL().Return(testSourceURL).AnyTimes()
	fetcher.EXPECT().Fetch(gomock.Any()).Return(fetchResult(descriptor("a", "1"), descriptor("b", "1")), nil)
	mockSink.EXPECT().Name().Return("log").AnyTimes()
	mockSink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	manager := NewDefaultManager(fetcher, newReconciler(newFileStore(t)), mockSink, WithTracer(tp.Tracer(TracerName)))
	_, syncErr := manager.PerformPass(t.Context())
	require.Nil(t, syncErr)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "sync.PerformPass", span.Name)
	assert.Equal(t, codes.Unset, span.Status.Code)
	assert.Contains(t, span.Attributes, otel.AttrManifestSource.String(testSourceURL))
	assert.Contains(t, span.Attributes, otel.AttrSinkName.String("log"))
	assert.Contains(t, span.Attributes, otel.AttrDescriptorCount.Int(2))
	assert.Contains(t, span.Attributes, otel.AttrAddedCount.Int(2))
	assert.Contains(t, span.Attributes, otel.AttrFailedCount.Int(0))
}

func TestPerformPass_SpanRecordsFailureReason(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := manifestmocks.NewMockFetcher(ctrl)
	mockSink := sinkmocks.NewMockSink(ctrl)
	exporter, tp := newTestTracer(t)

	fetcher.EXPECT().SourceURL().Return(testSourceURL).AnyTimes()
	fetcher.EXPECT().Fetch(gomock.Any()).Return(fetchResult(descriptor("a", "1")), nil)
	mockSink.EXPECT().Name().Return("http").AnyTimes()
	mockSink.EXPECT().Publish(gomock.Any(), gomock.Any()).
		Return(&sink.PublishError{Sink: "http", Err: errors.New("503")})

	manager := NewDefaultManager(fetcher, newReconciler(newFileStore(t)), mockSink, WithTracer(tp.Tracer(TracerName)))
	_, syncErr := manager.PerformPass(t.Context())
	require.NotNil(t, syncErr)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, otel.AttrPassReason.String(ReasonPublishFailed))
}
