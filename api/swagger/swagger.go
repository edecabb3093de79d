package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LibraTrack API",
        "description": "Library circulation management API",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token lifecycle"},
        {"name": "Books", "description": "Catalog management"},
        {"name": "BorrowRequests", "description": "Borrow approval workflow"},
        {"name": "Loans", "description": "Circulation records"},
        {"name": "Notifications", "description": "In-app notifications"},
        {"name": "Settings", "description": "Operator settings"},
        {"name": "Reports", "description": "Downloadable reports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Tokens issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/books": {
            "get": {
                "tags": ["Books"],
                "summary": "List books",
                "responses": {
                    "200": {"description": "Paged books"}
                }
            },
            "post": {
                "tags": ["Books"],
                "summary": "Create book",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Invalid ISBN or payload"}
                }
            }
        },
        "/borrow-requests": {
            "get": {
                "tags": ["BorrowRequests"],
                "summary": "List borrow requests",
                "responses": {
                    "200": {"description": "Paged requests"}
                }
            },
            "post": {
                "tags": ["BorrowRequests"],
                "summary": "Submit borrow request",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Book unavailable"}
                }
            }
        },
        "/borrow-requests/{id}/approve": {
            "post": {
                "tags": ["BorrowRequests"],
                "summary": "Approve request and create loan",
                "responses": {
                    "200": {"description": "Loan created"},
                    "409": {"description": "Already decided"}
                }
            }
        },
        "/loans/{id}/return": {
            "post": {
                "tags": ["Loans"],
                "summary": "Mark loan returned",
                "responses": {
                    "200": {"description": "Returned"},
                    "409": {"description": "Already returned"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List own notifications",
                "responses": {
                    "200": {"description": "Paged notifications"}
                }
            }
        }
    },
    "definitions": {
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
