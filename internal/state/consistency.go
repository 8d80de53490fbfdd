package state

import "fmt"

// BanRepairResult reports what a consistency sweep changed.
type BanRepairResult struct {
	ReBanned int64 // cameras moved to BANEADA because an active incident references them
	Unbanned int64 // cameras moved out of BANEADA because no active incident references them
}

const activeIncidentCameraRefs = `
	SELECT ic.camera_id FROM incident_cameras ic
	JOIN ban_incidents bi ON bi.id = ic.incident_id
	WHERE bi.active = 1`

// RepairBanConsistency re-derives every camera's ban state from the incident
// table: a camera is BANEADA if and only if at least one active incident
// references it. Cameras leaving BANEADA fall back to OCUPADA when an
// occupancy record claims them, otherwise LIBRE. Runs inside the caller's
// transaction so a crash leaves either the pre- or post-repair state.
func (t *Tx) RepairBanConsistency(nowNs int64) (BanRepairResult, error) {
	var result BanRepairResult

	res, err := t.tx.Exec(`
		UPDATE cameras SET state = 'BANEADA', updated_at_ns = ?
		WHERE state <> 'BANEADA' AND id IN (`+activeIncidentCameraRefs+`)
	`, nowNs)
	if err != nil {
		return result, fmt.Errorf("repair re-ban: %w", err)
	}
	if result.ReBanned, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("repair re-ban rows: %w", err)
	}

	res, err = t.tx.Exec(`
		UPDATE cameras SET
			state = CASE WHEN EXISTS (
				SELECT 1 FROM camera_occupancy o
				WHERE o.camera_id = cameras.id AND o.occupied = 1
			) THEN 'OCUPADA' ELSE 'LIBRE' END,
			updated_at_ns = ?
		WHERE state = 'BANEADA' AND id NOT IN (`+activeIncidentCameraRefs+`)
	`, nowNs)
	if err != nil {
		return result, fmt.Errorf("repair unquarantine: %w", err)
	}
	if result.Unbanned, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("repair unquarantine rows: %w", err)
	}

	return result, nil
}
