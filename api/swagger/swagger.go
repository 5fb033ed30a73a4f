package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Session Scheduler API",
        "description": "Recurring class schedules, session materialization and tutor rotation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Time Slots", "description": "Weekly recurring slots of a class"},
        {"name": "Sessions", "description": "Materialized dated sessions"},
        {"name": "Week Cancellations", "description": "Single-week suspensions of a slot"},
        {"name": "Tutor Assignments", "description": "Tutor rotation membership"},
        {"name": "System", "description": "Health and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "Health check",
                "security": [],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["System"],
                "summary": "Readiness check",
                "security": [],
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unavailable"}
                }
            }
        },
        "/classes/{classId}/time-slots": {
            "get": {
                "tags": ["Time Slots"],
                "summary": "List active time slots",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Class not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Time Slots"],
                "summary": "Create time slot",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TimeSlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid slot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the class owner", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps an active slot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/time-slots/{id}": {
            "put": {
                "tags": ["Time Slots"],
                "summary": "Update time slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TimeSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps an active slot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Time Slots"],
                "summary": "Deactivate time slot and cancel its future sessions",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/time-slots/{id}/sessions/generate": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Generate sessions for one slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/GenerateSessionsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Inactive slot or invalid horizon", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/time-slots/{id}/sessions/cancel": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Cancel every future session of a slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CancelSessionsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/time-slots/{id}/cancellations": {
            "get": {
                "tags": ["Week Cancellations"],
                "summary": "List cancelled weeks",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Week Cancellations"],
                "summary": "Cancel one week of a slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CancelWeekRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Week already cancelled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/time-slots/{id}/cancellations/{weekStart}": {
            "delete": {
                "tags": ["Week Cancellations"],
                "summary": "Reinstate a cancelled week",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "weekStart", "in": "path", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Week is not cancelled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List sessions",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/sessions/export": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Export sessions as CSV or PDF",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "404": {"description": "Exports disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/sessions/generate": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Generate sessions for every active slot of a class",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/GenerateSessionsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/sessions/fill-gaps": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Generate sessions for weeks of a range that have none",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FillGapsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/rotation/apply": {
            "post": {
                "tags": ["Tutor Assignments"],
                "summary": "Re-resolve tutors for unassigned pending sessions",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ApplyRotationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/tutor-assignments": {
            "get": {
                "tags": ["Tutor Assignments"],
                "summary": "List tutor assignments",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Tutor Assignments"],
                "summary": "Invite a tutor into the rotation",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTutorAssignmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Tutor unavailable for the slot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tutor-assignments/{id}/status": {
            "patch": {
                "tags": ["Tutor Assignments"],
                "summary": "Accept or decline an assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAssignmentStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the assigned tutor", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tutor-assignments/{id}": {
            "delete": {
                "tags": ["Tutor Assignments"],
                "summary": "Remove a tutor from the rotation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "definitions": {
        "TimeSlotRequest": {
            "type": "object",
            "required": ["subject", "dayOfWeek", "startTime", "endTime"],
            "properties": {
                "subject": {"type": "string"},
                "dayOfWeek": {"type": "integer", "minimum": 0, "maximum": 6, "description": "0 = Sunday"},
                "startTime": {"type": "string", "example": "14:00"},
                "endTime": {"type": "string", "example": "16:00"}
            }
        },
        "GenerateSessionsRequest": {
            "type": "object",
            "properties": {
                "weeksAhead": {"type": "integer", "minimum": 1},
                "startFromWeek": {"type": "string", "format": "date"}
            }
        },
        "FillGapsRequest": {
            "type": "object",
            "required": ["start", "end"],
            "properties": {
                "start": {"type": "string", "format": "date"},
                "end": {"type": "string", "format": "date"}
            }
        },
        "CancelSessionsRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "CancelWeekRequest": {
            "type": "object",
            "required": ["weekStart"],
            "properties": {
                "weekStart": {"type": "string", "format": "date"},
                "reason": {"type": "string"}
            }
        },
        "CreateTutorAssignmentRequest": {
            "type": "object",
            "required": ["subject", "tutorId", "recurrencePattern"],
            "properties": {
                "timeSlotId": {"type": "string"},
                "subject": {"type": "string"},
                "tutorId": {"type": "string"},
                "recurrencePattern": {"type": "string", "enum": ["ROUND_ROBIN", "WEEKLY", "CONSECUTIVE_DAYS", "MANUAL"]},
                "recurrenceConfig": {"type": "object"},
                "startDate": {"type": "string", "format": "date"},
                "endDate": {"type": "string", "format": "date"}
            }
        },
        "UpdateAssignmentStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["ACCEPTED", "DECLINED"]}
            }
        },
        "ApplyRotationRequest": {
            "type": "object",
            "properties": {
                "from": {"type": "string", "format": "date"},
                "to": {"type": "string", "format": "date"}
            }
        },
        "Session": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "class_id": {"type": "string"},
                "time_slot_id": {"type": "string"},
                "tutor_id": {"type": "string"},
                "subject": {"type": "string"},
                "scheduled_start": {"type": "string", "format": "date-time"},
                "scheduled_end": {"type": "string", "format": "date-time"},
                "price": {"type": "number"},
                "status": {"type": "string", "enum": ["PENDING", "CONFIRMED", "CANCELLED", "COMPLETED"]},
                "cancellation_reason": {"type": "string"},
                "cancellation_kind": {"type": "string", "enum": ["OCCURRENCE", "SLOT_CHANGE"]}
            }
        },
        "TimeSlotConflict": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "conflict": {"type": "object"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
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
