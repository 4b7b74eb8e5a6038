package solver

import (
	"fmt"

	"github.com/lukpank/go-glpk/glpk"

	"github.com/dhcsousa/hospitopt/internal/models"
)

// glpkSolver runs the assignment program through GLPK's branch-and-cut. GLPK
// is deterministic for a fixed model, and the model is built in triple
// insertion order, so identical inputs produce identical solutions.
type glpkSolver struct{}

func (s *glpkSolver) Solve(p Problem) (Solution, error) {
	if len(p.Triples) == 0 {
		return Solution{}, nil
	}
	if len(p.Weights) != len(p.Triples) {
		return Solution{}, fmt.Errorf("glpk: %d weights for %d triples", len(p.Weights), len(p.Triples))
	}

	lp := glpk.New()
	defer lp.Delete()

	lp.SetProbName("patient-assignment")
	lp.SetObjDir(glpk.MAX)

	// One binary column per feasible triple.
	lp.AddCols(len(p.Triples))
	for i := range p.Triples {
		col := i + 1
		lp.SetColBnds(col, glpk.DB, 0, 1)
		lp.SetColKind(col, glpk.BV)
		lp.SetObjCoef(col, p.Weights[i])
	}

	// Group columns by the entity they consume. Entities with no feasible
	// triple get no row at all, so they can never trip the solver.
	patientCols := make(map[models.PatientIndex][]int32)
	ambulanceCols := make(map[models.AmbulanceIndex][]int32)
	hospitalCols := make(map[models.HospitalIndex][]int32)
	for i, t := range p.Triples {
		col := int32(i + 1)
		patientCols[t.Patient] = append(patientCols[t.Patient], col)
		ambulanceCols[t.Ambulance] = append(ambulanceCols[t.Ambulance], col)
		hospitalCols[t.Hospital] = append(hospitalCols[t.Hospital], col)
	}

	row := 0
	addRow := func(cols []int32, bound float64) {
		row++
		lp.SetRowBnds(row, glpk.UP, 0, bound)
		ind := make([]int32, len(cols)+1)
		val := make([]float64, len(cols)+1)
		for j, col := range cols {
			ind[j+1] = col
			val[j+1] = 1
		}
		lp.SetMatRow(row, ind, val)
	}

	totalRows := len(patientCols) + len(ambulanceCols) + len(hospitalCols)
	lp.AddRows(totalRows)

	// Deterministic row order: patients, ambulances, hospitals by index.
	for pi := 0; pi < p.PatientCount; pi++ {
		if cols, ok := patientCols[models.PatientIndex(pi)]; ok {
			addRow(cols, 1)
		}
	}
	for ai := 0; ai < p.AmbulanceCount; ai++ {
		if cols, ok := ambulanceCols[models.AmbulanceIndex(ai)]; ok {
			addRow(cols, 1)
		}
	}
	for hi := 0; hi < p.HospitalCount; hi++ {
		cols, ok := hospitalCols[models.HospitalIndex(hi)]
		if !ok {
			continue
		}
		free := 0
		if hi < len(p.FreeBeds) {
			free = p.FreeBeds[hi]
		}
		addRow(cols, float64(free))
	}

	iocp := glpk.NewIocp()
	iocp.SetPresolve(true)
	if err := lp.Intopt(iocp); err != nil {
		return Solution{}, fmt.Errorf("glpk intopt: %w", err)
	}
	if st := lp.MipStatus(); st != glpk.OPT && st != glpk.FEAS {
		return Solution{}, fmt.Errorf("glpk: no integer solution (status %v)", st)
	}

	sol := Solution{ObjectiveValue: lp.MipObjVal()}
	for i := range p.Triples {
		if lp.MipColVal(i+1) > 0.5 {
			sol.Chosen = append(sol.Chosen, i)
		}
	}
	return sol, nil
}
