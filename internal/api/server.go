// Package api exposes the shared store as a read-only paginated REST
// surface: the same endpoints the worker's api ingestion mode consumes.
package api

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dhcsousa/hospitopt/internal/models"
)

const (
	defaultLimit = 1000
	maxLimit     = 5000
)

type Server struct {
	db     *sql.DB
	apiKey string
	log    *logrus.Logger
}

func NewServer(db *sql.DB, apiKey string, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{db: db, apiKey: apiKey, log: log}
}

// Router builds the gin engine with bearer auth on every resource route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	authed := r.Group("/", s.requireAPIKey)
	authed.GET("/hospitals", s.listHospitals)
	authed.GET("/patients", s.listPatients)
	authed.GET("/ambulances", s.listAmbulances)
	authed.GET("/assignments", s.listAssignments)
	return r
}

func (s *Server) requireAPIKey(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token != s.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
		return
	}
	c.Next()
}

type page struct {
	limit  int
	offset int
}

func pagination(c *gin.Context) page {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return page{limit: limit, offset: offset}
}

func envelope(c *gin.Context, items any, total int, pg page) {
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"limit":  pg.limit,
		"offset": pg.offset,
	})
}

func (s *Server) count(c *gin.Context, table string) (int, bool) {
	var total int
	// table names are fixed by the callers below, never user input
	if err := s.db.QueryRowContext(c.Request.Context(), `SELECT COUNT(*) FROM `+table).Scan(&total); err != nil {
		s.log.WithError(err).Error("count query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return 0, false
	}
	return total, true
}

func (s *Server) listHospitals(c *gin.Context) {
	pg := pagination(c)
	total, ok := s.count(c, "hospitals")
	if !ok {
		return
	}

	rows, err := s.db.QueryContext(c.Request.Context(),
		`SELECT id, name, bed_capacity, used_beds, lat, lon FROM hospitals ORDER BY id OFFSET $1 LIMIT $2`,
		pg.offset, pg.limit,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	defer rows.Close()

	items := make([]models.Hospital, 0)
	for rows.Next() {
		var h models.Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.BedCapacity, &h.UsedBeds, &h.Lat, &h.Lon); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
			return
		}
		items = append(items, h)
	}
	envelope(c, items, total, pg)
}

func (s *Server) listPatients(c *gin.Context) {
	pg := pagination(c)
	total, ok := s.count(c, "patients")
	if !ok {
		return
	}

	rows, err := s.db.QueryContext(c.Request.Context(),
		`SELECT id, lat, lon, time_to_hospital_minutes, registered_at FROM patients ORDER BY id OFFSET $1 LIMIT $2`,
		pg.offset, pg.limit,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	defer rows.Close()

	items := make([]models.Patient, 0)
	for rows.Next() {
		var p models.Patient
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lon, &p.TimeToHospitalMinutes, &p.RegisteredAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
			return
		}
		items = append(items, p)
	}
	envelope(c, items, total, pg)
}

func (s *Server) listAmbulances(c *gin.Context) {
	pg := pagination(c)
	total, ok := s.count(c, "ambulances")
	if !ok {
		return
	}

	rows, err := s.db.QueryContext(c.Request.Context(),
		`SELECT id, lat, lon, assigned_patient_id FROM ambulances ORDER BY id OFFSET $1 LIMIT $2`,
		pg.offset, pg.limit,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	defer rows.Close()

	items := make([]models.Ambulance, 0)
	for rows.Next() {
		var a models.Ambulance
		if err := rows.Scan(&a.ID, &a.Lat, &a.Lon, &a.AssignedPatientID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
			return
		}
		items = append(items, a)
	}
	envelope(c, items, total, pg)
}

func (s *Server) listAssignments(c *gin.Context) {
	pg := pagination(c)
	total, ok := s.count(c, "patient_assignments")
	if !ok {
		return
	}

	rows, err := s.db.QueryContext(c.Request.Context(),
		`SELECT patient_id, hospital_id, ambulance_id, travel_time_minutes,
		        time_left_minutes, time_to_hospital_minutes, patient_registered_at,
		        requires_urgent_transport, optimized_at
		   FROM patient_assignments ORDER BY optimized_at DESC OFFSET $1 LIMIT $2`,
		pg.offset, pg.limit,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	defer rows.Close()

	items := make([]models.PatientAssignment, 0)
	for rows.Next() {
		var a models.PatientAssignment
		if err := rows.Scan(&a.PatientID, &a.HospitalID, &a.AmbulanceID, &a.EstimatedTravelMinutes,
			&a.DeadlineSlackMinutes, &a.TreatmentDeadlineMinutes, &a.PatientRegisteredAt,
			&a.RequiresUrgentTransport, &a.OptimizedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
			return
		}
		items = append(items, a)
	}
	envelope(c, items, total, pg)
}
