package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

// registerRecordTools wires the raw document and file access tools.
// These are routine: agents use them for non-clinical reads and writes,
// and sensitive workflows go through the dedicated gated tools instead.
func registerRecordTools(reg *tool.Registry, deps Deps) error {
	tools := []tool.Descriptor{
		{
			Name:        "records.get",
			Description: "Read a single document by collection and ID.",
			Sensitivity: tool.Routine,
			InputSchema: objectSchema([]string{"collection", "doc_id"}, map[string]interface{}{
				"collection": strProp(""),
				"doc_id":     strProp(""),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				collection, err := stringArg(args, "collection")
				if err != nil {
					return nil, err
				}
				id, err := stringArg(args, "doc_id")
				if err != nil {
					return nil, err
				}
				doc, err := deps.Store.Get(ctx, collection, id)
				if errors.Is(err, outbound.ErrNotFound) {
					return map[string]interface{}{"data": nil}, nil
				}
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"data": doc}, nil
			},
		},
		{
			Name:        "records.put",
			Description: "Write a document (auto ID if doc_id omitted).",
			Sensitivity: tool.Routine,
			InputSchema: objectSchema([]string{"collection", "data"}, map[string]interface{}{
				"collection": strProp(""),
				"doc_id":     strProp("Optional document ID, generated when omitted."),
				"data":       objProp(""),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				collection, err := stringArg(args, "collection")
				if err != nil {
					return nil, err
				}
				data := optMap(args, "data")
				if data == nil {
					return nil, fmt.Errorf("missing required field %q", "data")
				}
				id := optString(args, "doc_id", uuid.NewString())
				if err := deps.Store.Put(ctx, collection, id, data); err != nil {
					return nil, err
				}
				return map[string]interface{}{"doc_id": id}, nil
			},
		},
		{
			Name:        "records.update",
			Description: "Patch fields on an existing document.",
			Sensitivity: tool.Routine,
			InputSchema: objectSchema([]string{"collection", "doc_id", "data"}, map[string]interface{}{
				"collection": strProp(""),
				"doc_id":     strProp(""),
				"data":       objProp(""),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				collection, err := stringArg(args, "collection")
				if err != nil {
					return nil, err
				}
				id, err := stringArg(args, "doc_id")
				if err != nil {
					return nil, err
				}
				data := optMap(args, "data")
				if data == nil {
					return nil, fmt.Errorf("missing required field %q", "data")
				}
				if err := deps.Store.Update(ctx, collection, id, data); err != nil {
					return nil, err
				}
				return map[string]interface{}{"status": "ok"}, nil
			},
		},
		{
			Name:        "records.delete",
			Description: "Delete a document by collection and ID.",
			Sensitivity: tool.Routine,
			InputSchema: objectSchema([]string{"collection", "doc_id"}, map[string]interface{}{
				"collection": strProp(""),
				"doc_id":     strProp(""),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				collection, err := stringArg(args, "collection")
				if err != nil {
					return nil, err
				}
				id, err := stringArg(args, "doc_id")
				if err != nil {
					return nil, err
				}
				if err := deps.Store.Delete(ctx, collection, id); err != nil {
					return nil, err
				}
				return map[string]interface{}{"status": "ok"}, nil
			},
		},
		{
			Name:        "records.query",
			Description: "Query a collection with simple field filters.",
			Sensitivity: tool.Routine,
			InputSchema: objectSchema([]string{"collection"}, map[string]interface{}{
				"collection": strProp(""),
				"filters":    arrProp("Array of {field, op, value} filters."),
				"limit":      intProp(""),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				collection, err := stringArg(args, "collection")
				if err != nil {
					return nil, err
				}
				var filters []outbound.Filter
				for _, raw := range optSlice(args, "filters") {
					f, ok := raw.(map[string]interface{})
					if !ok {
						continue
					}
					field, _ := f["field"].(string)
					op, _ := f["op"].(string)
					if field == "" || op == "" {
						continue
					}
					filters = append(filters, outbound.Filter{Field: field, Op: op, Value: f["value"]})
				}
				docs, err := deps.Store.Query(ctx, collection, filters)
				if err != nil {
					return nil, err
				}
				if limit := optInt(args, "limit", 0); limit > 0 && len(docs) > limit {
					docs = docs[:limit]
				}
				return map[string]interface{}{"results": docs}, nil
			},
		},
		{
			Name:        "records.store_file",
			Description: "Store a file in blob storage and return its URL.",
			Sensitivity: tool.Routine,
			InputSchema: objectSchema([]string{"path", "content"}, map[string]interface{}{
				"path":         strProp("Logical storage path in the bucket."),
				"content":      strProp("Base64-encoded file bytes."),
				"content_type": strProp("MIME type of the file."),
				"metadata":     objProp("Optional key-value metadata to attach to the object."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				path, err := stringArg(args, "path")
				if err != nil {
					return nil, err
				}
				content, err := stringArg(args, "content")
				if err != nil {
					return nil, err
				}
				data, err := base64.StdEncoding.DecodeString(content)
				if err != nil {
					return nil, fmt.Errorf("invalid base64 content: %w", err)
				}
				contentType := optString(args, "content_type", "application/octet-stream")
				metadata := map[string]string{}
				for k, v := range optMap(args, "metadata") {
					metadata[k] = fmt.Sprint(v)
				}
				url, err := deps.Blobs.Put(ctx, path, data, contentType, metadata)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"url": url, "path": path}, nil
			},
		},
	}

	for _, desc := range tools {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
