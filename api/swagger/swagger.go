package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "KPS School API",
        "description": "Role-based school management backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Accounts and tokens"},
        {"name": "Students", "description": "Admissions and guardians"},
        {"name": "Grades", "description": "Assessment scores"},
        {"name": "Attendance", "description": "Daily attendance"},
        {"name": "Behaviour", "description": "Discipline incidents"},
        {"name": "Notifications", "description": "Guardian notification feed"},
        {"name": "Messaging", "description": "Threads and unread tracking"},
        {"name": "Reports", "description": "Term report downloads"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a user account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Username taken"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students visible to the caller",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Admit a student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Admission number exists"}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Not a guardian"}
                }
            }
        },
        "/students/{id}/reports/{termId}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a student's term report",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "termId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["pdf", "csv"]}
                ],
                "responses": {
                    "200": {"description": "Report file"},
                    "403": {"description": "Not a guardian"}
                }
            }
        },
        "/grades": {
            "get": {
                "tags": ["Grades"],
                "summary": "List grade entries visible to the caller",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "assessmentId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Grades"],
                "summary": "Record a grade and notify guardians",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateGradeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Grade already recorded"}
                }
            }
        },
        "/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record attendance for a student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordAttendanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Already recorded for this date"}
                }
            }
        },
        "/incidents": {
            "post": {
                "tags": ["Behaviour"],
                "summary": "Report a behaviour incident and notify guardians",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReportIncidentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List own notifications",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/threads": {
            "get": {
                "tags": ["Messaging"],
                "summary": "List threads the caller participates in",
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Messaging"],
                "summary": "Open a thread",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateThreadRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Empty subject"}
                }
            }
        },
        "/threads/{id}/messages": {
            "get": {
                "tags": ["Messaging"],
                "summary": "List a thread's messages; marks them read for the caller",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Not a participant"}
                }
            },
            "post": {
                "tags": ["Messaging"],
                "summary": "Post a message",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PostMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Empty body"},
                    "403": {"description": "Not a participant"}
                }
            }
        },
        "/messages/unread-count": {
            "get": {
                "tags": ["Messaging"],
                "summary": "Count own unread messages",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"},
                "email": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "phone": {"type": "string"},
                "role": {"type": "string", "enum": ["ADMIN", "TEACHER", "PARENT", "STAFF"]}
            },
            "required": ["username", "password"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["username", "password"]
        },
        "CreateStudentRequest": {
            "type": "object",
            "properties": {
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "dob": {"type": "string", "format": "date-time"},
                "admission_number": {"type": "string"},
                "current_class_id": {"type": "string"},
                "photo_url": {"type": "string"},
                "guardian_ids": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["first_name", "last_name", "admission_number"]
        },
        "CreateGradeRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "assessment_id": {"type": "string"},
                "score": {"type": "number"},
                "remarks": {"type": "string"}
            },
            "required": ["student_id", "assessment_id", "score"]
        },
        "RecordAttendanceRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "date": {"type": "string", "format": "date-time"},
                "status": {"type": "string", "enum": ["present", "absent", "late", "excused"]},
                "note": {"type": "string"}
            },
            "required": ["student_id", "date", "status"]
        },
        "ReportIncidentRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "date": {"type": "string", "format": "date-time"},
                "description": {"type": "string"},
                "action_taken": {"type": "string"},
                "severity": {"type": "string", "enum": ["low", "medium", "high"]}
            },
            "required": ["student_id", "description", "severity"]
        },
        "CreateThreadRequest": {
            "type": "object",
            "properties": {
                "subject": {"type": "string"},
                "participant_ids": {"type": "array", "items": {"type": "string"}},
                "body": {"type": "string"}
            },
            "required": ["subject"]
        },
        "PostMessageRequest": {
            "type": "object",
            "properties": {
                "body": {"type": "string"}
            },
            "required": ["body"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
