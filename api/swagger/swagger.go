package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Schedule Sync API",
        "description": "Faculty, group and week selection over the university timetable service",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Selection", "description": "Faculty → group → week state machine"},
        {"name": "Exports", "description": "Downloadable schedule exports"},
        {"name": "System", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["System"],
                "summary": "Readiness of the engine and its stores",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency check failed"}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stats": {
            "get": {
                "tags": ["System"],
                "summary": "Aggregated engine statistics",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/state": {
            "get": {
                "tags": ["Selection"],
                "summary": "Current selection snapshot",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}}}
            }
        },
        "/api/v1/state/stream": {
            "get": {
                "tags": ["Selection"],
                "summary": "Server-sent events carrying every published snapshot",
                "produces": ["text/event-stream"],
                "responses": {"200": {"description": "snapshot and ping events"}}
            }
        },
        "/api/v1/groups": {
            "get": {
                "tags": ["Selection"],
                "summary": "Filter groups of the selected faculty",
                "parameters": [
                    {"name": "q", "in": "query", "type": "string", "description": "Case and diacritic insensitive match on name or full name"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/selection/initial": {
            "post": {
                "tags": ["Selection"],
                "summary": "Load faculties once and restore the last selection",
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}}}
            }
        },
        "/api/v1/selection/faculty": {
            "post": {
                "tags": ["Selection"],
                "summary": "Select a faculty",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SelectFacultyRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}},
                    "400": {"description": "Unknown faculty", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/selection/group": {
            "post": {
                "tags": ["Selection"],
                "summary": "Select a group of the current faculty",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SelectGroupRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}},
                    "400": {"description": "Unknown group", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/selection/date": {
            "post": {
                "tags": ["Selection"],
                "summary": "Move the selection to a date",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SelectDateRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}},
                    "400": {"description": "Invalid date", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/selection/week/next": {
            "post": {
                "tags": ["Selection"],
                "summary": "Move seven days forward",
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}}}
            }
        },
        "/api/v1/selection/week/previous": {
            "post": {
                "tags": ["Selection"],
                "summary": "Move seven days back",
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}}}
            }
        },
        "/api/v1/selection/week/current": {
            "post": {
                "tags": ["Selection"],
                "summary": "Move to today",
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}}}
            }
        },
        "/api/v1/selection/refresh": {
            "post": {
                "tags": ["Selection"],
                "summary": "Re-fetch the selected week",
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/SnapshotEnvelope"}}}
            }
        },
        "/api/v1/schedule/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export the selected week",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"], "default": "csv"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Exports disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No schedule loaded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a generated export",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "404": {"description": "Unknown token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Link expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SelectFacultyRequest": {
            "type": "object",
            "required": ["faculty_id"],
            "properties": {"faculty_id": {"type": "string"}}
        },
        "SelectGroupRequest": {
            "type": "object",
            "required": ["group_id"],
            "properties": {"group_id": {"type": "string"}}
        },
        "SelectDateRequest": {
            "type": "object",
            "required": ["date"],
            "properties": {"date": {"type": "string", "example": "2024-09-04"}}
        },
        "Snapshot": {
            "type": "object",
            "properties": {
                "phase": {"type": "string", "enum": ["no_faculty", "faculties_loading", "faculty_selected", "groups_loading", "group_selected", "schedule_loading", "schedule_ready", "schedule_empty"]},
                "faculties": {"type": "array", "items": {"type": "object"}},
                "missing_faculties": {"type": "array", "items": {"type": "string"}},
                "groups": {"type": "array", "items": {"type": "object"}},
                "selected_faculty": {"type": "object"},
                "selected_group": {"type": "object"},
                "last_group_name": {"type": "string"},
                "selected_date": {"type": "string", "format": "date-time"},
                "week_start": {"type": "string", "format": "date-time"},
                "week_end": {"type": "string", "format": "date-time"},
                "schedule": {"type": "object"},
                "loading": {"type": "object"},
                "error": {"type": "string"},
                "error_code": {"type": "string"},
                "network_blocked": {"type": "boolean"},
                "notice": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "detail": {"type": "string"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        },
        "SnapshotEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/Snapshot"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
