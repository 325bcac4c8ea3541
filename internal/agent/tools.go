package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

const (
	toolQueryFlightData = "query_flight_data"
	toolDetectAnomalies = "detect_anomalies"
	toolGetMessageData  = "get_message_data"
	toolGetTimeSeries   = "get_time_series"
)

// callTool runs one tool call and returns its JSON result. Failures come
// back as an error payload for the model to read rather than aborting the
// conversation.
func (a *Agent) callTool(call openai.ToolCall) string {
	result, err := a.dispatch(call)
	if err != nil {
		a.logger.Warn("tool call failed",
			slog.String("tool", call.Function.Name),
			slog.Any("error", err))
		return errorPayload(err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return errorPayload(fmt.Errorf("encoding %s result: %w", call.Function.Name, err))
	}
	return string(out)
}

func errorPayload(err error) string {
	out, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		return `{"error":"internal error"}`
	}
	return string(out)
}

func (a *Agent) dispatch(call openai.ToolCall) (any, error) {
	if a.log == nil {
		return nil, errors.New("no flight log loaded for this session")
	}
	raw := []byte(call.Function.Arguments)

	switch call.Function.Name {
	case toolQueryFlightData:
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		return a.log.Query(args.Query), nil

	case toolDetectAnomalies:
		var args struct {
			AnalysisType string `json:"analysis_type"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		return filterReport(a.log.Anomalies(), args.AnalysisType), nil

	case toolGetMessageData:
		var args struct {
			MessageType string `json:"message_type"`
			Limit       int    `json:"limit"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		return a.messageData(args.MessageType, args.Limit)

	case toolGetTimeSeries:
		var args struct {
			MessageType string `json:"message_type"`
			Field       string `json:"field"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		return a.timeSeries(args.MessageType, args.Field)

	default:
		return nil, fmt.Errorf("unknown tool %q", call.Function.Name)
	}
}

// filterReport slices one category out of the report. An unrecognized
// analysis type answers with an empty list under the requested key.
func filterReport(report flight.Report, analysisType string) any {
	switch analysisType {
	case "", "all":
		return report
	case "altitude":
		return map[string]any{"altitude_anomalies": report.Altitude}
	case "battery":
		return map[string]any{"battery_anomalies": report.Battery}
	case "gps":
		return map[string]any{"gps_anomalies": report.GPS}
	case "vibration":
		return map[string]any{"vibration_anomalies": report.Vibration}
	default:
		return map[string]any{analysisType + "_anomalies": []flight.Anomaly{}}
	}
}

// messageData previews one message type. A type the log never saw is a
// count of zero, not an error.
func (a *Agent) messageData(msgType string, limit int) (any, error) {
	if msgType == "" {
		return nil, errors.New("message_type is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	recs, total := a.log.Records(msgType, limit)

	if len(recs) > rawPreview {
		recs = recs[:rawPreview]
	}
	preview := make([]map[string]flight.Value, 0, len(recs))
	for _, r := range recs {
		preview = append(preview, r.Fields)
	}

	out := map[string]any{
		"message_type": msgType,
		"count":        total,
		"records":      preview,
	}
	if total > len(preview) {
		out["note"] = fmt.Sprintf("showing first %d of %d records", len(preview), total)
	}
	return out, nil
}

func (a *Agent) timeSeries(msgType, field string) (any, error) {
	if msgType == "" || field == "" {
		return nil, errors.New("message_type and field are required")
	}
	series, ok := a.log.TimeSeries(msgType, field)
	if !ok {
		return nil, fmt.Errorf("no numeric %s.%s data in this log", msgType, field)
	}
	return map[string]any{
		"message_type": series.MsgType,
		"field":        series.Field,
		"count":        series.Stats.Count,
		"min":          series.Stats.Min,
		"max":          series.Stats.Max,
		"mean":         series.Stats.Mean,
		"std":          series.Stats.StdDev,
		"sample":       series.Sample(sampleLen),
	}, nil
}

func toolDefinitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolQueryFlightData,
				Description: "Look up summary flight metrics by topic: altitude, battery, temperature, GPS, flight duration, errors, RC signal. Best for direct factual questions.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"query": {
							Type:        jsonschema.String,
							Description: "The question to answer, e.g. \"What was the maximum altitude?\"",
						},
					},
					Required: []string{"query"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolDetectAnomalies,
				Description: "Scan the log for anomalies: altitude rate spikes, battery voltage drops, GPS signal loss and excessive vibration.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"analysis_type": {
							Type:        jsonschema.String,
							Enum:        []string{"all", "altitude", "battery", "gps", "vibration"},
							Description: "Which scan to run. Use \"all\" for the full report.",
						},
					},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolGetMessageData,
				Description: "Fetch raw records of one message type (GPS, BAT, ERR, MODE, ...) for detailed inspection. Returns a preview of the first records plus the total count.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"message_type": {
							Type:        jsonschema.String,
							Description: "Message type name, e.g. \"GPS\".",
						},
						"limit": {
							Type:        jsonschema.Integer,
							Description: "Maximum records to fetch. Defaults to 100.",
						},
					},
					Required: []string{"message_type"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolGetTimeSeries,
				Description: "Compute statistics (count, min, max, mean, std) for one numeric field of one message type, with a few sample points.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"message_type": {
							Type:        jsonschema.String,
							Description: "Message type name, e.g. \"GPS\".",
						},
						"field": {
							Type:        jsonschema.String,
							Description: "Field name within the message, e.g. \"Alt\".",
						},
					},
					Required: []string{"message_type", "field"},
				},
			},
		},
	}
}
