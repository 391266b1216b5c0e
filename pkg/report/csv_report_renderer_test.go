package report

import (
	"testing"

	"github.com/costwise/costwise/pkg/evm"
)

func TestCsvRendererImpl_RenderReport(t1 *testing.T) {
	type args struct {
		report NineColumnReport
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{
			name: "RenderReport with two accounts",
			args: args{
				report: NineColumnReport{
					ProjectID: 1,
					Lines: []Line{
						{
							Code: "CA-100",
							Name: "Civil works",
							Metrics: evm.Calculate(evm.Input{
								PlannedValue:       d("100"),
								EarnedValue:        d("80"),
								ActualCost:         d("100"),
								BudgetAtCompletion: d("500"),
							}),
						},
						{
							Code: "CA-200",
							Name: "Electrical",
							Metrics: evm.Calculate(evm.Input{
								PlannedValue:       d("200"),
								EarnedValue:        d("200"),
								ActualCost:         d("200"),
								BudgetAtCompletion: d("400"),
							}),
						},
					},
					Totals: evm.Aggregate([]evm.Input{
						{PlannedValue: d("100"), EarnedValue: d("80"), ActualCost: d("100"), BudgetAtCompletion: d("500")},
						{PlannedValue: d("200"), EarnedValue: d("200"), ActualCost: d("200"), BudgetAtCompletion: d("400")},
					}),
				},
			},
			want: "Code,Name,BAC,PV,EV,AC,CV,SV,CPI,SPI,EAC\n" +
				"CA-100,Civil works,500.00,100.00,80.00,100.00,-20.00,-20.00,0.80,0.80,625.00\n" +
				"CA-200,Electrical,400.00,200.00,200.00,200.00,0.00,0.00,1.00,1.00,400.00\n" +
				"TOTAL,,900.00,300.00,280.00,300.00,-20.00,-20.00,0.93,0.93,964.29\n",
		},
		{
			name: "RenderReport with no lines",
			args: args{
				report: NineColumnReport{ProjectID: 1},
			},
			want: "Code,Name,BAC,PV,EV,AC,CV,SV,CPI,SPI,EAC\n" +
				"TOTAL,,0.00,0.00,0.00,0.00,0.00,0.00,0.00,0.00,0.00\n",
		},
	}
	for _, tt := range tests {
		t1.Run(tt.name, func(t1 *testing.T) {
			t := NewCsvRenderer()
			got, err := t.RenderReport(tt.args.report)
			if err != nil {
				t1.Errorf("RenderReport() error = %v", err)
				return
			}
			if got != tt.want {
				t1.Errorf("RenderReport() got = %v, want %v", got, tt.want)
			}
		})
	}
}
