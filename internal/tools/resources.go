package tools

// resourceSummaries holds the canned FHIR record summaries served by
// get_resources, in the order they are advertised to the model.
var resourceSummaries = []struct {
	ID      string
	Summary string
}{
	{
		ID:      "Procedure-Appendectomy-05-25-2014",
		Summary: "This is the summary of the requested Procedure-Appendectomy-05-25-2014:\n\nAppendectomy Procedure\nPatient underwent an appendectomy on May 25, 2014. The procedure was completed successfully with no complications. Recovery was uneventful.",
	},
	{
		ID:      "Observation-ThyroxineT4-09-04-2014",
		Summary: "This is the summary of the requested Observation-ThyroxineT4-09-04-2014:\n\nThyroxine (T4) Lab Result\nThyroxine (T4) level was 1.2 ng/dL, within the normal range of 0.8 to 1.8 ng/dL as of September 4, 2014.",
	},
	{
		ID:      "Observation-TSH-09-04-2014",
		Summary: "This is the summary of the requested Observation-TSH-09-04-2014:\n\nTSH Lab Result\nThyroid Stimulating Hormone (TSH) level was 2.5 mIU/L, within the normal range of 0.4 to 4.0 mIU/L as of September 4, 2014.",
	},
	{
		ID:      "Procedure-ACLrepair-06-09-2021",
		Summary: "This is the summary of the requested Procedure-ACLrepair-06-09-2021:\n\nACL Repair Procedure\nCandace Salinas underwent a completed ACL repair procedure on June 9, 2021.",
	},
	{
		ID:      "Observation-Totalcholesterol-10-18-2023",
		Summary: "This is the summary of the requested Observation-Totalcholesterol-10-18-2023:\n\nCholesterol Test Result\nTotal cholesterol level is 184 mg/dL, within the normal range of 120 to 220 mg/dL, as of October 18, 2023.",
	},
	{
		ID:      "Observation-BloodGlucose-10-18-2023",
		Summary: "This is the summary of the requested Observation-BloodGlucose-10-18-2023:\n\nBlood Glucose Observation\nBlood glucose level measured at 60 mg/dL, which is below the normal reference range of 61-100 mg/dL, as of October 18, 2023.",
	},
	{
		ID:      "Procedure-UltrasoundAbdomen-10-18-2023",
		Summary: "This is the summary of the requested Procedure-UltrasoundAbdomen-10-18-2023:\n\nUltrasound Abdomen Procedure\nCompleted ultrasound scan of the lower abdomen performed on 2023-10-18 by Dr. Altick Kelly, a gynecologist.",
	},
	{
		ID:      "Observation-CBCpanelBloodbyAutomatedcount-10-18-2023",
		Summary: "This is the summary of the requested Observation-CBCpanelBloodbyAutomatedcount-10-18-2023:\n\nCBC Panel Results\nCBC panel shows leukocytes at 111 (10*3/uL), erythrocytes at 222 (10*6/uL), platelets at 333 (10*3/uL), and hemoglobin at 444 g/dL, within the reference range of 400 to 500 g/dL.",
	},
	{
		ID:      "Observation-RespiratoryRate-10-18-2023",
		Summary: "This is the summary of the requested Observation-RespiratoryRate-10-18-2023:\n\nRespiratory Rate Observation\nRespiratory rate recorded as 22 breaths per minute on October 18, 2023, during encounter 129837645.",
	},
	{
		ID:      "Observation-BPbloodpressure-10-18-2023",
		Summary: "This is the summary of the requested Observation-BPbloodpressure-10-18-2023:\n\nBlood Pressure Observation\nBlood pressure recorded as 110/70 mmHg on October 18, 2023, during encounter 129837645.",
	},
	{
		ID:      "Observation-Weight-10-18-2023",
		Summary: "This is the summary of the requested Observation-Weight-10-18-2023:\n\nWeight Observation\nPatient's weight recorded as 155 lbs on October 18, 2023.",
	},
	{
		ID:      "Observation-Height-10-18-2023",
		Summary: "This is the summary of the requested Observation-Height-10-18-2023:\n\nHeight Observation\nHeight recorded as 164 cm on October 18, 2023.",
	},
	{
		ID:      "Observation-LDLcholesterol-10-18-2023",
		Summary: "This is the summary of the requested Observation-LDLcholesterol-10-18-2023:\n\nLDL Cholesterol Test Result\nLDL cholesterol level is 113.3 mg/dL, within the normal range of 50 to 178 mg/dL, as of October 18, 2023.",
	},
	{
		ID:      "Observation-CholesterolHDL-02-18-2024",
		Summary: "This is the summary of the requested Observation-CholesterolHDL-02-18-2024:\n\nCholesterol HDL Test Result\nHDL cholesterol level is 95.5 mg/dL, which is above the normal range of 35 to 59 mg/dL. Test status is final as of February 18, 2024.",
	},
	{
		ID:      "Observation-Triglycerides-02-18-2024",
		Summary: "This is the summary of the requested Observation-Triglycerides-02-18-2024:\n\nTriglycerides Lab Result\nTriglycerides level is 86 mg/dL, within the normal range of 10 to 250 mg/dL, as of February 18, 2024.",
	},
	{
		ID:      "Observation-BMIbodymassindex-02-18-2024",
		Summary: "This is the summary of the requested Observation-BMIbodymassindex-02-18-2024:\n\nBMI Observation\nYour BMI is 26.2 kg/m^2 as of February 18, 2024.",
	},
	{
		ID:      "Observation-Temperature-02-18-2024",
		Summary: "This is the summary of the requested Observation-Temperature-02-18-2024:\n\nTemperature Observation\nThe patient's temperature was recorded as 37.6°C on February 18, 2024, during an encounter. The observation status is final.",
	},
	{
		ID:      "Observation-Pulse-02-18-2024",
		Summary: "This is the summary of the requested Observation-Pulse-02-18-2024:\n\nPulse Observation\nPulse rate recorded as 77 beats per minute on February 18, 2024.",
	},
}
