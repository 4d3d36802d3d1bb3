// Package arrowpipeline encodes replay results as Apache Arrow IPC streams
// for columnar consumers.
package arrowpipeline

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"momentum-backtest/services/engine"
)

// Pipeline builds Arrow record batches from engine output.
type Pipeline struct {
	alloc memory.Allocator
	log   *zap.Logger
}

func NewPipeline(log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{alloc: memory.NewGoAllocator(), log: log}
}

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "entry_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "entry_bar", Type: arrow.PrimitiveTypes.Int32},
	{Name: "direction", Type: arrow.BinaryTypes.String},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "stop_loss", Type: arrow.PrimitiveTypes.Float64},
	{Name: "take_profit", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_bar", Type: arrow.PrimitiveTypes.Int32},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	{Name: "profit_ticks", Type: arrow.PrimitiveTypes.Float64},
	{Name: "profit_usd", Type: arrow.PrimitiveTypes.Float64},
	{Name: "segment_id", Type: arrow.PrimitiveTypes.Int32},
}, nil)

var stateSchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "oscillator", Type: arrow.PrimitiveTypes.Float64},
	{Name: "rmi", Type: arrow.PrimitiveTypes.Float64},
	{Name: "mfi", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fast_ema", Type: arrow.PrimitiveTypes.Float64},
	{Name: "slope", Type: arrow.PrimitiveTypes.Float64},
	{Name: "regime", Type: arrow.PrimitiveTypes.Int32},
	{Name: "atr", Type: arrow.PrimitiveTypes.Float64},
	{Name: "band_max", Type: arrow.PrimitiveTypes.Float64},
	{Name: "band_min", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// EncodeTrades serializes the closed-trade ledger to one Arrow IPC record
// batch.
func (p *Pipeline) EncodeTrades(trades []*engine.Trade) ([]byte, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("no trades to encode")
	}

	b := array.NewRecordBuilder(p.alloc, tradeSchema)
	defer b.Release()

	for _, t := range trades {
		b.Field(0).(*array.Int64Builder).Append(t.EntryTime)
		b.Field(1).(*array.Int32Builder).Append(int32(t.EntryBar))
		b.Field(2).(*array.StringBuilder).Append(t.Direction.String())
		b.Field(3).(*array.Float64Builder).Append(t.EntryPrice)
		b.Field(4).(*array.Float64Builder).Append(t.StopLoss)
		b.Field(5).(*array.Float64Builder).Append(t.TakeProfit)
		b.Field(6).(*array.Int64Builder).Append(t.ExitTime)
		b.Field(7).(*array.Int32Builder).Append(int32(t.ExitBar))
		b.Field(8).(*array.Float64Builder).Append(t.ExitPrice)
		b.Field(9).(*array.StringBuilder).Append(t.ExitReason)
		b.Field(10).(*array.Float64Builder).Append(t.ProfitTicks)
		b.Field(11).(*array.Float64Builder).Append(t.Profit)
		b.Field(12).(*array.Int32Builder).Append(int32(t.SegmentID))
	}

	return p.serialize(b, tradeSchema, len(trades))
}

// EncodeStates serializes the per-bar indicator series alongside the bar
// closes. Both slices must be index-aligned.
func (p *Pipeline) EncodeStates(bars []engine.Bar, states []engine.IndicatorState) ([]byte, error) {
	if len(bars) != len(states) {
		return nil, fmt.Errorf("bars/states length mismatch: %d vs %d", len(bars), len(states))
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no states to encode")
	}

	b := array.NewRecordBuilder(p.alloc, stateSchema)
	defer b.Release()

	for i := range bars {
		st := states[i]
		b.Field(0).(*array.Int64Builder).Append(bars[i].Timestamp)
		b.Field(1).(*array.Float64Builder).Append(bars[i].Close)
		b.Field(2).(*array.Float64Builder).Append(st.Oscillator)
		b.Field(3).(*array.Float64Builder).Append(st.RMI)
		b.Field(4).(*array.Float64Builder).Append(st.MFI)
		b.Field(5).(*array.Float64Builder).Append(st.FastEMA)
		b.Field(6).(*array.Float64Builder).Append(st.Slope)
		b.Field(7).(*array.Int32Builder).Append(int32(st.Regime))
		b.Field(8).(*array.Float64Builder).Append(st.ATR)
		b.Field(9).(*array.Float64Builder).Append(st.BandMax)
		b.Field(10).(*array.Float64Builder).Append(st.BandMin)
	}

	return p.serialize(b, stateSchema, len(bars))
}

func (p *Pipeline) serialize(b *array.RecordBuilder, schema *arrow.Schema, rows int) ([]byte, error) {
	record := b.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(p.alloc))
	if err := w.Write(record); err != nil {
		w.Close()
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	p.log.Debug("encoded arrow batch", zap.Int("rows", rows), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}
