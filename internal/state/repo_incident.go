package state

import (
	"database/sql"
	"fmt"

	"github.com/ruteo-noc/ruteo/internal/model"
)

// --- ban incidents ---

const incidentColumns = `id, affected_service_id, protected_service_id, protected_route_id,
	reason, ticket_ref, closure_reason, active, started_at_ns, ended_at_ns`

func scanIncident(scan func(dest ...any) error) (model.BanIncident, error) {
	var inc model.BanIncident
	err := scan(&inc.ID, &inc.AffectedServiceID, &inc.ProtectedServiceID, &inc.ProtectedRouteID,
		&inc.Reason, &inc.TicketRef, &inc.ClosureReason, &inc.Active, &inc.StartedAtNs, &inc.EndedAtNs)
	return inc, err
}

func getIncident(q querier, id string) (*model.BanIncident, error) {
	row := q.QueryRow("SELECT "+incidentColumns+" FROM ban_incidents WHERE id = ?", id)
	inc, err := scanIncident(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	return &inc, nil
}

// GetIncident returns an incident by id.
func (r *TopologyRepo) GetIncident(id string) (*model.BanIncident, error) {
	return getIncident(r.db, id)
}

// GetIncident returns an incident by id, observing the transaction's writes.
func (t *Tx) GetIncident(id string) (*model.BanIncident, error) {
	return getIncident(t.tx, id)
}

// ListActiveIncidents returns all incidents with active=true, oldest first.
func (r *TopologyRepo) ListActiveIncidents() ([]model.BanIncident, error) {
	rows, err := r.db.Query("SELECT " + incidentColumns + " FROM ban_incidents WHERE active = 1 ORDER BY started_at_ns")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.BanIncident
	for rows.Next() {
		inc, err := scanIncident(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, inc)
	}
	return result, rows.Err()
}

// InsertIncident creates an incident row.
func (t *Tx) InsertIncident(inc model.BanIncident) error {
	_, err := t.tx.Exec(`
		INSERT INTO ban_incidents (`+incidentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inc.ID, inc.AffectedServiceID, inc.ProtectedServiceID, inc.ProtectedRouteID,
		inc.Reason, inc.TicketRef, inc.ClosureReason, inc.Active, inc.StartedAtNs, inc.EndedAtNs)
	return err
}

// CloseIncident marks an incident inactive. Incident rows are never deleted.
func (t *Tx) CloseIncident(id, closureReason string, endedAtNs int64) error {
	res, err := t.tx.Exec(`
		UPDATE ban_incidents SET active = 0, closure_reason = ?, ended_at_ns = ?
		WHERE id = ?
	`, closureReason, endedAtNs, id)
	if err != nil {
		return err
	}
	return requireRowAffected(res, "incident")
}

// --- incident cameras ---

// InsertIncidentCamera records that an incident references a camera.
func (t *Tx) InsertIncidentCamera(ic model.IncidentCamera) error {
	_, err := t.tx.Exec(`
		INSERT INTO incident_cameras (incident_id, camera_id, newly_banned)
		VALUES (?, ?, ?)
	`, ic.IncidentID, ic.CameraID, ic.NewlyBanned)
	return err
}

func listIncidentCameras(q querier, incidentID string) ([]model.IncidentCamera, error) {
	rows, err := q.Query(`
		SELECT incident_id, camera_id, newly_banned FROM incident_cameras
		WHERE incident_id = ? ORDER BY camera_id
	`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.IncidentCamera
	for rows.Next() {
		var ic model.IncidentCamera
		if err := rows.Scan(&ic.IncidentID, &ic.CameraID, &ic.NewlyBanned); err != nil {
			return nil, err
		}
		result = append(result, ic)
	}
	return result, rows.Err()
}

// ListIncidentCameras returns the cameras referenced by an incident.
func (r *TopologyRepo) ListIncidentCameras(incidentID string) ([]model.IncidentCamera, error) {
	return listIncidentCameras(r.db, incidentID)
}

// ListIncidentCameras returns the cameras referenced by an incident inside the transaction.
func (t *Tx) ListIncidentCameras(incidentID string) ([]model.IncidentCamera, error) {
	return listIncidentCameras(t.tx, incidentID)
}

// ActiveIncidentCountForCamera counts active incidents referencing a camera,
// excluding the given incident id (pass "" to count all).
func (t *Tx) ActiveIncidentCountForCamera(cameraID, excludeIncidentID string) (int, error) {
	var n int
	err := t.tx.QueryRow(`
		SELECT COUNT(*) FROM incident_cameras ic
		JOIN ban_incidents bi ON bi.id = ic.incident_id
		WHERE ic.camera_id = ? AND bi.active = 1 AND bi.id <> ?
	`, cameraID, excludeIncidentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active incidents for camera: %w", err)
	}
	return n, nil
}

// --- camera occupancy ---

// GetOccupancy returns the occupancy record for a camera inside the
// transaction, or ErrNotFound if none exists.
func (t *Tx) GetOccupancy(cameraID string) (*model.CameraOccupancy, error) {
	row := t.tx.QueryRow(
		"SELECT camera_id, occupied, source, updated_at_ns FROM camera_occupancy WHERE camera_id = ?",
		cameraID,
	)
	var occ model.CameraOccupancy
	if err := row.Scan(&occ.CameraID, &occ.Occupied, &occ.Source, &occ.UpdatedAtNs); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan occupancy: %w", err)
	}
	return &occ, nil
}

// UpsertOccupancy inserts or updates a camera's occupancy record.
func (t *Tx) UpsertOccupancy(occ model.CameraOccupancy) error {
	_, err := t.tx.Exec(`
		INSERT INTO camera_occupancy (camera_id, occupied, source, updated_at_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(camera_id) DO UPDATE SET
			occupied      = excluded.occupied,
			source        = excluded.source,
			updated_at_ns = excluded.updated_at_ns
	`, occ.CameraID, occ.Occupied, occ.Source, occ.UpdatedAtNs)
	return err
}
