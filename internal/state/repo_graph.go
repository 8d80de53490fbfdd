package state

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ruteo-noc/ruteo/internal/model"
)

// --- services ---

func getService(q querier, id string) (*model.Service, error) {
	row := q.QueryRow("SELECT id, name, created_at_ns FROM services WHERE id = ?", id)
	var s model.Service
	if err := row.Scan(&s.ID, &s.Name, &s.CreatedAtNs); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan service: %w", err)
	}
	return &s, nil
}

// GetService returns a service by its business identifier.
func (r *TopologyRepo) GetService(id string) (*model.Service, error) {
	return getService(r.db, id)
}

// GetService returns a service by id, observing the transaction's writes.
func (t *Tx) GetService(id string) (*model.Service, error) {
	return getService(t.tx, id)
}

// ListServices returns all services.
func (r *TopologyRepo) ListServices() ([]model.Service, error) {
	rows, err := r.db.Query("SELECT id, name, created_at_ns FROM services ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAtNs); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// InsertService creates a service row.
func (t *Tx) InsertService(s model.Service) error {
	_, err := t.tx.Exec(
		"INSERT INTO services (id, name, created_at_ns) VALUES (?, ?, ?)",
		s.ID, s.Name, s.CreatedAtNs,
	)
	return err
}

// --- routes ---

const routeColumns = `id, service_id, name, kind, fingerprint, path_signature,
	endpoint_a_site, endpoint_a_connector, endpoint_b_site, endpoint_b_connector,
	active, created_at_ns, updated_at_ns`

func scanRoute(scan func(dest ...any) error) (model.Route, error) {
	var rt model.Route
	err := scan(&rt.ID, &rt.ServiceID, &rt.Name, &rt.Kind, &rt.Fingerprint, &rt.PathSignature,
		&rt.EndpointASite, &rt.EndpointAConnector, &rt.EndpointBSite, &rt.EndpointBConnector,
		&rt.Active, &rt.CreatedAtNs, &rt.UpdatedAtNs)
	return rt, err
}

func getRoute(q querier, id string) (*model.Route, error) {
	row := q.QueryRow("SELECT "+routeColumns+" FROM routes WHERE id = ?", id)
	rt, err := scanRoute(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan route: %w", err)
	}
	return &rt, nil
}

func listRoutes(q querier, query string, args ...any) ([]model.Route, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Route
	for rows.Next() {
		rt, err := scanRoute(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rt)
	}
	return result, rows.Err()
}

// GetRoute returns a route by id.
func (r *TopologyRepo) GetRoute(id string) (*model.Route, error) {
	return getRoute(r.db, id)
}

// GetRoute returns a route by id, observing the transaction's writes.
func (t *Tx) GetRoute(id string) (*model.Route, error) {
	return getRoute(t.tx, id)
}

// ListRoutesByService returns all routes of a service, newest last.
func (r *TopologyRepo) ListRoutesByService(serviceID string) ([]model.Route, error) {
	return listRoutes(r.db,
		"SELECT "+routeColumns+" FROM routes WHERE service_id = ? ORDER BY created_at_ns", serviceID)
}

// ListRoutesByService returns all routes of a service inside the transaction.
func (t *Tx) ListRoutesByService(serviceID string) ([]model.Route, error) {
	return listRoutes(t.tx,
		"SELECT "+routeColumns+" FROM routes WHERE service_id = ? ORDER BY created_at_ns", serviceID)
}

// FindActiveRoutesBySignature returns active routes (across all services)
// whose path signature matches.
func (r *TopologyRepo) FindActiveRoutesBySignature(sig string) ([]model.Route, error) {
	return listRoutes(r.db,
		"SELECT "+routeColumns+" FROM routes WHERE path_signature = ? AND active = 1 ORDER BY created_at_ns", sig)
}

// InsertRoute creates a route row.
func (t *Tx) InsertRoute(rt model.Route) error {
	_, err := t.tx.Exec(`
		INSERT INTO routes (`+routeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rt.ID, rt.ServiceID, rt.Name, rt.Kind, rt.Fingerprint, rt.PathSignature,
		rt.EndpointASite, rt.EndpointAConnector, rt.EndpointBSite, rt.EndpointBConnector,
		rt.Active, rt.CreatedAtNs, rt.UpdatedAtNs)
	return err
}

// UpdateRouteContent stores a recomputed fingerprint/signature and endpoint
// markers for a route after its association set changed.
func (t *Tx) UpdateRouteContent(rt model.Route) error {
	res, err := t.tx.Exec(`
		UPDATE routes SET
			fingerprint          = ?,
			path_signature       = ?,
			endpoint_a_site      = ?,
			endpoint_a_connector = ?,
			endpoint_b_site      = ?,
			endpoint_b_connector = ?,
			updated_at_ns        = ?
		WHERE id = ?
	`, rt.Fingerprint, rt.PathSignature,
		rt.EndpointASite, rt.EndpointAConnector, rt.EndpointBSite, rt.EndpointBConnector,
		rt.UpdatedAtNs, rt.ID)
	if err != nil {
		return err
	}
	return requireRowAffected(res, "route")
}

// SetRouteActive flips a route's active flag.
func (t *Tx) SetRouteActive(id string, active bool, updatedAtNs int64) error {
	res, err := t.tx.Exec(
		"UPDATE routes SET active = ?, updated_at_ns = ? WHERE id = ?",
		active, updatedAtNs, id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res, "route")
}

func requireRowAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- cameras ---

const cameraColumns = `id, external_ref, name, norm_name, state, origin,
	lat, lon, manual_fields_json, created_at_ns, updated_at_ns`

func scanCamera(scan func(dest ...any) error) (model.Camera, error) {
	var c model.Camera
	var lat, lon sql.NullFloat64
	err := scan(&c.ID, &c.ExternalRef, &c.Name, &c.NormName, &c.State, &c.Origin,
		&lat, &lon, &c.ManualFieldsJSON, &c.CreatedAtNs, &c.UpdatedAtNs)
	if err != nil {
		return c, err
	}
	if lat.Valid {
		c.Lat = &lat.Float64
	}
	if lon.Valid {
		c.Lon = &lon.Float64
	}
	return c, nil
}

func getCameraBy(q querier, where string, arg any) (*model.Camera, error) {
	row := q.QueryRow("SELECT "+cameraColumns+" FROM cameras WHERE "+where+" ORDER BY created_at_ns LIMIT 1", arg)
	c, err := scanCamera(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan camera: %w", err)
	}
	return &c, nil
}

// GetCamera returns a camera by id.
func (r *TopologyRepo) GetCamera(id string) (*model.Camera, error) {
	return getCameraBy(r.db, "id = ?", id)
}

// GetCamera returns a camera by id, observing the transaction's writes.
func (t *Tx) GetCamera(id string) (*model.Camera, error) {
	return getCameraBy(t.tx, "id = ?", id)
}

// GetCameraByExternalRef looks a camera up by its external reference id.
func (t *Tx) GetCameraByExternalRef(ref string) (*model.Camera, error) {
	return getCameraBy(t.tx, "external_ref = ?", ref)
}

// GetCameraByNormName looks a camera up by normalized name. When duplicates
// exist the oldest record wins, matching upsert precedence.
func (t *Tx) GetCameraByNormName(norm string) (*model.Camera, error) {
	return getCameraBy(t.tx, "norm_name = ?", norm)
}

// ListCameras returns all cameras ordered by normalized name.
func (r *TopologyRepo) ListCameras() ([]model.Camera, error) {
	rows, err := r.db.Query("SELECT " + cameraColumns + " FROM cameras ORDER BY norm_name, created_at_ns")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Camera
	for rows.Next() {
		c, err := scanCamera(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// CameraIdentity is the lookup-key projection of a camera row, used to
// rebuild the in-memory identity index at bootstrap.
type CameraIdentity struct {
	ID          string
	ExternalRef string
	NormName    string
}

// CameraIdentities returns id/external_ref/norm_name for every camera.
func (r *TopologyRepo) CameraIdentities() ([]CameraIdentity, error) {
	rows, err := r.db.Query("SELECT id, external_ref, norm_name FROM cameras ORDER BY created_at_ns")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CameraIdentity
	for rows.Next() {
		var ci CameraIdentity
		if err := rows.Scan(&ci.ID, &ci.ExternalRef, &ci.NormName); err != nil {
			return nil, err
		}
		result = append(result, ci)
	}
	return result, rows.Err()
}

// InsertCamera creates a camera row.
func (t *Tx) InsertCamera(c model.Camera) error {
	_, err := t.tx.Exec(`
		INSERT INTO cameras (`+cameraColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ExternalRef, c.Name, c.NormName, c.State, c.Origin,
		nullFloat(c.Lat), nullFloat(c.Lon), c.ManualFieldsJSON, c.CreatedAtNs, c.UpdatedAtNs)
	return err
}

// UpdateCameraState sets a camera's state.
func (t *Tx) UpdateCameraState(id, cameraState string, updatedAtNs int64) error {
	res, err := t.tx.Exec(
		"UPDATE cameras SET state = ?, updated_at_ns = ? WHERE id = ?",
		cameraState, updatedAtNs, id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res, "camera")
}

// UpdateCameraEnrichment persists an enrichment result: coordinates, state,
// origin, and the manually-verified field list.
func (t *Tx) UpdateCameraEnrichment(c model.Camera) error {
	res, err := t.tx.Exec(`
		UPDATE cameras SET
			external_ref       = ?,
			state              = ?,
			origin             = ?,
			lat                = ?,
			lon                = ?,
			manual_fields_json = ?,
			updated_at_ns      = ?
		WHERE id = ?
	`, c.ExternalRef, c.State, c.Origin, nullFloat(c.Lat), nullFloat(c.Lon),
		c.ManualFieldsJSON, c.UpdatedAtNs, c.ID)
	if err != nil {
		return err
	}
	return requireRowAffected(res, "camera")
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// --- cables ---

// UpsertCable inserts or updates the edge between two cameras. The pair is
// stored in lexicographic camera-id order so A→B and B→A share one row.
func (t *Tx) UpsertCable(c model.Cable) error {
	a, b := c.CameraAID, c.CameraBID
	if b < a {
		a, b = b, a
	}
	_, err := t.tx.Exec(`
		INSERT INTO cables (id, camera_a_id, camera_b_id, attenuation_db, updated_at_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(camera_a_id, camera_b_id) DO UPDATE SET
			attenuation_db = excluded.attenuation_db,
			updated_at_ns  = excluded.updated_at_ns
	`, c.ID, a, b, nullFloat(c.AttenuationDB), c.UpdatedAtNs)
	return err
}

// ListCables returns all cables.
func (r *TopologyRepo) ListCables() ([]model.Cable, error) {
	rows, err := r.db.Query("SELECT id, camera_a_id, camera_b_id, attenuation_db, updated_at_ns FROM cables")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Cable
	for rows.Next() {
		var c model.Cable
		var att sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.CameraAID, &c.CameraBID, &att, &c.UpdatedAtNs); err != nil {
			return nil, err
		}
		if att.Valid {
			c.AttenuationDB = &att.Float64
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// --- splice associations ---

func listAssociations(q querier, routeID string) ([]model.SpliceAssociation, error) {
	rows, err := q.Query(`
		SELECT route_id, ord, camera_id, strand_alias, transit, attenuation_db
		FROM splice_associations WHERE route_id = ?
		ORDER BY ord, strand_alias
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.SpliceAssociation
	for rows.Next() {
		var a model.SpliceAssociation
		var att sql.NullFloat64
		if err := rows.Scan(&a.RouteID, &a.Ord, &a.CameraID, &a.StrandAlias, &a.Transit, &att); err != nil {
			return nil, err
		}
		if att.Valid {
			a.AttenuationDB = &att.Float64
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ListAssociations returns a route's associations ordered by (ord, strand_alias).
func (r *TopologyRepo) ListAssociations(routeID string) ([]model.SpliceAssociation, error) {
	return listAssociations(r.db, routeID)
}

// ListAssociations returns a route's associations inside the transaction.
func (t *Tx) ListAssociations(routeID string) ([]model.SpliceAssociation, error) {
	return listAssociations(t.tx, routeID)
}

// StrandCount returns the number of distinct strand aliases on a route.
func (r *TopologyRepo) StrandCount(routeID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(DISTINCT strand_alias) FROM splice_associations WHERE route_id = ?",
		routeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count strands: %w", err)
	}
	return n, nil
}

// RouteStrandAliases returns the distinct strand aliases recorded on a
// route, the empty alias included for alias-less rows.
func (r *TopologyRepo) RouteStrandAliases(routeID string) ([]string, error) {
	rows, err := r.db.Query(
		"SELECT DISTINCT strand_alias FROM splice_associations WHERE route_id = ? ORDER BY strand_alias",
		routeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list strand aliases: %w", err)
	}
	defer rows.Close()

	var aliases []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// InsertAssociation creates one association row.
func (t *Tx) InsertAssociation(a model.SpliceAssociation) error {
	_, err := t.tx.Exec(`
		INSERT INTO splice_associations (route_id, ord, camera_id, strand_alias, transit, attenuation_db)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.RouteID, a.Ord, a.CameraID, a.StrandAlias, a.Transit, nullFloat(a.AttenuationDB))
	return err
}

// DeleteAssociations removes all association rows of a route. Cameras stay:
// they may be shared with other routes.
func (t *Tx) DeleteAssociations(routeID string) error {
	_, err := t.tx.Exec("DELETE FROM splice_associations WHERE route_id = ?", routeID)
	return err
}

// TransferAssociations moves a route's association rows to another route
// (transfer, not copy), returning how many rows moved. The destination must
// not already hold a conflicting (ord, strand_alias) row.
func (t *Tx) TransferAssociations(fromRouteID, toRouteID string) (int64, error) {
	res, err := t.tx.Exec(
		"UPDATE splice_associations SET route_id = ? WHERE route_id = ?",
		toRouteID, fromRouteID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RouteEntryRow joins an association row with its camera's identity, in the
// exact order the route's fingerprint is computed over.
type RouteEntryRow struct {
	Ord         int
	StrandAlias string
	Transit     bool
	CameraID    string
	Site        string // the camera's normalized name
	ExternalRef string
}

// ListRouteEntryRows returns a route's associations joined with camera
// identities, ordered by (ord, strand_alias).
func (t *Tx) ListRouteEntryRows(routeID string) ([]RouteEntryRow, error) {
	rows, err := t.tx.Query(`
		SELECT sa.ord, sa.strand_alias, sa.transit, sa.camera_id, c.norm_name, c.external_ref
		FROM splice_associations sa
		JOIN cameras c ON c.id = sa.camera_id
		WHERE sa.route_id = ?
		ORDER BY sa.ord, sa.strand_alias
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RouteEntryRow
	for rows.Next() {
		var row RouteEntryRow
		if err := rows.Scan(&row.Ord, &row.StrandAlias, &row.Transit, &row.CameraID, &row.Site, &row.ExternalRef); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// CamerasOnRoutes returns the distinct cameras referenced by any of the given
// routes' associations.
func (t *Tx) CamerasOnRoutes(routeIDs []string) ([]model.Camera, error) {
	if len(routeIDs) == 0 {
		return nil, nil
	}
	placeholders := "?" + repeatSuffix(",?", len(routeIDs)-1)
	args := make([]any, len(routeIDs))
	for i, id := range routeIDs {
		args[i] = id
	}
	rows, err := t.tx.Query(`
		SELECT DISTINCT `+prefixColumns("c", cameraColumns)+`
		FROM cameras c
		JOIN splice_associations sa ON sa.camera_id = c.id
		WHERE sa.route_id IN (`+placeholders+`)
		ORDER BY c.norm_name
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Camera
	for rows.Next() {
		c, err := scanCamera(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func repeatSuffix(s string, n int) string {
	return strings.Repeat(s, n)
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
